package enums

import "fmt"

// GatewayEventKind is the normalized kind of an asynchronous gateway callback.
type GatewayEventKind string

const (
	GatewayEventChargeSucceeded GatewayEventKind = "charge_succeeded"
	GatewayEventChargeFailed    GatewayEventKind = "charge_failed"
	GatewayEventChargeExpired   GatewayEventKind = "charge_expired"
	GatewayEventRefundIssued    GatewayEventKind = "refund_issued"
)

var validGatewayEventKinds = []GatewayEventKind{
	GatewayEventChargeSucceeded,
	GatewayEventChargeFailed,
	GatewayEventChargeExpired,
	GatewayEventRefundIssued,
}

func (k GatewayEventKind) String() string {
	return string(k)
}

func (k GatewayEventKind) IsValid() bool {
	for _, candidate := range validGatewayEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseGatewayEventKind(value string) (GatewayEventKind, error) {
	for _, candidate := range validGatewayEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway event kind %q", value)
}
