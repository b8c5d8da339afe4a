package verifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/shopspring/decimal"
)

var allowedSlipMIMEs = []string{"image/jpeg", "image/png", "image/webp"}

// Evidence is the proof a customer or gateway submits for an order.
type Evidence struct {
	Kind     enums.EvidenceKind
	Image    []byte
	Provider string
	ChargeID string
	Amount   decimal.Decimal
}

// Outcome is the transient result of checking one piece of evidence.
type Outcome struct {
	Accepted      bool
	AmountMatched bool
	Reason        enums.PaymentReason
	Amount        decimal.Decimal
	RawRef        string
}

type slipVerifier interface {
	VerifySlip(ctx context.Context, image []byte, expected decimal.Decimal) (SlipResult, error)
}

// Verifier puts slip uploads and gateway charges behind one Verify call.
type Verifier struct {
	slips           slipVerifier
	receiverAccount string
}

func New(slips slipVerifier, receiverAccount string) (*Verifier, error) {
	if slips == nil {
		return nil, fmt.Errorf("slip verifier required")
	}
	return &Verifier{slips: slips, receiverAccount: digitsOnly(receiverAccount)}, nil
}

// DetectSlipMIME reports the sniffed content type and whether it is an accepted slip image.
func DetectSlipMIME(image []byte) (string, bool) {
	mt := mimetype.Detect(image)
	return mt.String(), mimetype.EqualsAny(mt.String(), allowedSlipMIMEs...)
}

func (v *Verifier) Verify(ctx context.Context, evidence Evidence, expected decimal.Decimal) (Outcome, error) {
	switch evidence.Kind {
	case enums.EvidenceKindSlip:
		return v.verifySlip(ctx, evidence, expected)
	case enums.EvidenceKindGatewayCharge:
		return verifyCharge(evidence, expected), nil
	default:
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown evidence kind")
	}
}

func (v *Verifier) verifySlip(ctx context.Context, evidence Evidence, expected decimal.Decimal) (Outcome, error) {
	if len(evidence.Image) == 0 {
		return Outcome{Reason: enums.PaymentReasonUnreadable}, nil
	}
	if _, ok := DetectSlipMIME(evidence.Image); !ok {
		return Outcome{Reason: enums.PaymentReasonUnsupportedMedia}, nil
	}
	res, err := v.slips.VerifySlip(ctx, evidence.Image, expected)
	if err != nil {
		return Outcome{Reason: enums.PaymentReasonInconclusive}, err
	}
	out := Outcome{Reason: res.Reason, Amount: res.Amount, RawRef: res.TransactionRef}
	if !res.Verified {
		out.AmountMatched = res.Reason != enums.PaymentReasonAmountMismatch && res.Amount.Equal(expected)
		return out, nil
	}
	if v.receiverAccount != "" && !receiverMatches(v.receiverAccount, res.ReceiverAccount) {
		out.Reason = enums.PaymentReasonWrongReceiver
		return out, nil
	}
	out.AmountMatched = res.Amount.Equal(expected)
	if !out.AmountMatched {
		out.Reason = enums.PaymentReasonAmountMismatch
		return out, nil
	}
	out.Accepted = true
	out.Reason = enums.PaymentReasonVerified
	return out, nil
}

func verifyCharge(evidence Evidence, expected decimal.Decimal) Outcome {
	out := Outcome{Amount: evidence.Amount, RawRef: evidence.ChargeID}
	if strings.TrimSpace(evidence.ChargeID) == "" {
		out.Reason = enums.PaymentReasonUnreadable
		return out
	}
	out.AmountMatched = evidence.Amount.Equal(expected)
	if !out.AmountMatched {
		out.Reason = enums.PaymentReasonAmountMismatch
		return out
	}
	out.Accepted = true
	out.Reason = enums.PaymentReasonVerified
	return out
}

// minVisibleDigits is the fewest unmasked digits a receiver account must show
// before it is trusted to identify the configured account.
const minVisibleDigits = 4

// receiverMatches lines a masked account (e.g. xxx-x-x1234-x) up against the
// configured account from the right and requires every visible digit to sit
// at its own position. Separators are ignored; x, X, * and • mark hidden digits.
func receiverMatches(configured, masked string) bool {
	positions := make([]rune, 0, len(masked))
	visible := 0
	for _, r := range masked {
		switch {
		case r >= '0' && r <= '9':
			positions = append(positions, r)
			visible++
		case r == 'x' || r == 'X' || r == '*' || r == '•':
			positions = append(positions, 0)
		}
	}
	if visible < minVisibleDigits || len(positions) > len(configured) {
		return false
	}
	offset := len(configured) - len(positions)
	for i, r := range positions {
		if r != 0 && rune(configured[offset+i]) != r {
			return false
		}
	}
	return true
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
