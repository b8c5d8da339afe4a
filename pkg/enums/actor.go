package enums

import "strings"

// Actor identities recorded against transitions and audit events.
const (
	ActorSystem     = "system"
	ActorSystemAuto = "SYSTEM_AUTO"
	ActorCustomer   = "customer"

	actorAdminPrefix   = "admin:"
	actorGatewayPrefix = "gateway:"
)

// AdminActor builds the actor identity for an administrator.
func AdminActor(email string) string {
	return actorAdminPrefix + strings.ToLower(strings.TrimSpace(email))
}

// GatewayActor builds the actor identity for a payment provider callback.
func GatewayActor(provider string) string {
	return actorGatewayPrefix + strings.ToLower(strings.TrimSpace(provider))
}

// IsAdminActor reports whether the identity names an administrator.
func IsAdminActor(actor string) bool {
	return strings.HasPrefix(actor, actorAdminPrefix)
}
