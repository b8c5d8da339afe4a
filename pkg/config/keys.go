package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "STOREFRONT_APP_ENV"
	EnvPort                   = "STOREFRONT_APP_PORT"
	EnvDBDSN                  = "STOREFRONT_DB_DSN"
	EnvDBHost                 = "STOREFRONT_DB_HOST"
	EnvDBUser                 = "STOREFRONT_DB_USER"
	EnvDBName                 = "STOREFRONT_DB_NAME"
	EnvRedisURL               = "STOREFRONT_REDIS_URL"
	EnvJWTSecret              = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer              = "STOREFRONT_JWT_ISSUER"
	EnvOrderExpiryWindow      = "STOREFRONT_ORDER_EXPIRY_WINDOW"
	EnvCustomerIndexRetention = "STOREFRONT_CUSTOMER_INDEX_RETENTION"
	EnvAdminEmails            = "STOREFRONT_ADMIN_EMAILS"
	EnvSlipVerifierURL        = "STOREFRONT_SLIP_VERIFIER_URL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
