package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Verifier     VerifierConfig
	Square       SquareConfig
	Admin        AdminConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Export       ExportConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates admin bearer tokens minted by the storefront auth service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	// TTL applies to tokens minted by this service (operator tooling and tests).
	TTL time.Duration `envconfig:"STOREFRONT_JWT_TTL" default:"30m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type OrdersConfig struct {
	ExpiryWindow        time.Duration `envconfig:"STOREFRONT_ORDER_EXPIRY_WINDOW" default:"24h"`
	SweepInterval       time.Duration `envconfig:"STOREFRONT_ORDER_SWEEP_INTERVAL" default:"15m"`
	SweepConcurrency    int           `envconfig:"STOREFRONT_ORDER_SWEEP_CONCURRENCY" default:"8"`
	BulkConcurrency     int           `envconfig:"STOREFRONT_ORDER_BULK_CONCURRENCY" default:"8"`
	IndexRetention      int           `envconfig:"STOREFRONT_CUSTOMER_INDEX_RETENTION" default:"500"`
	EvidenceClaimTTL    time.Duration `envconfig:"STOREFRONT_EVIDENCE_CLAIM_TTL" default:"2160h"`
	WebhookDedupeTTL    time.Duration `envconfig:"STOREFRONT_WEBHOOK_DEDUPE_TTL" default:"72h"`
	NotificationWorkers int           `envconfig:"STOREFRONT_NOTIFICATION_WORKERS" default:"4"`
	NotificationBuffer  int           `envconfig:"STOREFRONT_NOTIFICATION_BUFFER" default:"256"`
}

func (o OrdersConfig) validate() error {
	if o.ExpiryWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrderExpiryWindow)
	}
	if o.IndexRetention <= 0 {
		return fmt.Errorf("%s must be positive", EnvCustomerIndexRetention)
	}
	return nil
}

type VerifierConfig struct {
	BaseURL         string        `envconfig:"STOREFRONT_SLIP_VERIFIER_URL"`
	APIKey          string        `envconfig:"STOREFRONT_SLIP_VERIFIER_API_KEY"`
	ReceiverAccount string        `envconfig:"STOREFRONT_SLIP_RECEIVER_ACCOUNT"`
	ReceiverName    string        `envconfig:"STOREFRONT_SLIP_RECEIVER_NAME"`
	CallTimeout     time.Duration `envconfig:"STOREFRONT_SLIP_VERIFIER_CALL_TIMEOUT" default:"20s"`
	TotalTimeout    time.Duration `envconfig:"STOREFRONT_SLIP_VERIFIER_TOTAL_TIMEOUT" default:"45s"`
	MaxRetries      uint64        `envconfig:"STOREFRONT_SLIP_VERIFIER_MAX_RETRIES" default:"2"`
	MaxUploadBytes  int64         `envconfig:"STOREFRONT_SLIP_MAX_UPLOAD_BYTES" default:"5242880"`
}

type SquareConfig struct {
	AccessToken         string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env                 string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	WebhookSignatureKey string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_URL"`
}

// Environment returns the configured Square environment in lower case.
func (c SquareConfig) Environment() string {
	return strings.ToLower(strings.TrimSpace(c.Env))
}

// AdminConfig seeds the permission resolver; the Redis blob wins when present.
type AdminConfig struct {
	Emails    []string `envconfig:"STOREFRONT_ADMIN_EMAILS"`
	ConfigKey string   `envconfig:"STOREFRONT_ADMIN_CONFIG_KEY" default:"admin_emails"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"storefront-order-notifications"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	OrdersTable string `envconfig:"STOREFRONT_BIGQUERY_ORDERS_TABLE" default:"order_snapshots"`
}

type ExportConfig struct {
	Enabled     bool          `envconfig:"STOREFRONT_EXPORT_ENABLED" default:"false"`
	Debounce    time.Duration `envconfig:"STOREFRONT_EXPORT_DEBOUNCE" default:"30s"`
	MinInterval time.Duration `envconfig:"STOREFRONT_EXPORT_MIN_INTERVAL" default:"5m"`
	Lookback    time.Duration `envconfig:"STOREFRONT_EXPORT_LOOKBACK" default:"720h"`
	// FlushInterval bounds how stale the warehouse gets when no order changes trigger an export.
	FlushInterval time.Duration `envconfig:"STOREFRONT_EXPORT_FLUSH_INTERVAL" default:"1h"`
}

type CronConfig struct {
	Tick    time.Duration `envconfig:"STOREFRONT_CRON_TICK" default:"1m"`
	LockKey string        `envconfig:"STOREFRONT_CRON_LOCK_KEY" default:"cron_worker"`
	LockTTL time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
