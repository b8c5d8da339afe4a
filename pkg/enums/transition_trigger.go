package enums

import "fmt"

// TransitionTrigger names the writer that requested a status change.
type TransitionTrigger string

const (
	TriggerPayment       TransitionTrigger = "payment"
	TriggerAdmin         TransitionTrigger = "admin"
	TriggerExpiry        TransitionTrigger = "expiry"
	TriggerPickup        TransitionTrigger = "pickup"
	TriggerGatewayRefund TransitionTrigger = "gateway_refund"
	TriggerGatewayExpiry TransitionTrigger = "gateway_expiry"
)

var validTransitionTriggers = []TransitionTrigger{
	TriggerPayment,
	TriggerAdmin,
	TriggerExpiry,
	TriggerPickup,
	TriggerGatewayRefund,
	TriggerGatewayExpiry,
}

// TransitionTriggers returns every known trigger.
func TransitionTriggers() []TransitionTrigger {
	out := make([]TransitionTrigger, len(validTransitionTriggers))
	copy(out, validTransitionTriggers)
	return out
}

func (t TransitionTrigger) String() string {
	return string(t)
}

func (t TransitionTrigger) IsValid() bool {
	for _, candidate := range validTransitionTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseTransitionTrigger(value string) (TransitionTrigger, error) {
	for _, candidate := range validTransitionTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transition trigger %q", value)
}
