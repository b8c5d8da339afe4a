package enums

import "fmt"

// EvidenceKind distinguishes how a payment was proven.
type EvidenceKind string

const (
	EvidenceKindSlip          EvidenceKind = "slip"
	EvidenceKindGatewayCharge EvidenceKind = "gateway_charge"
)

func (k EvidenceKind) String() string {
	return string(k)
}

func (k EvidenceKind) IsValid() bool {
	return k == EvidenceKindSlip || k == EvidenceKindGatewayCharge
}

func ParseEvidenceKind(value string) (EvidenceKind, error) {
	candidate := EvidenceKind(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid evidence kind %q", value)
}
