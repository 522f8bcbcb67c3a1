package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MODACART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MODACART_DB_DSN"
	EnvDBHost = "MODACART_DB_HOST"
	EnvDBUser = "MODACART_DB_USER"
	EnvDBName = "MODACART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// Config is the full environment-driven configuration, shared by every
// binary in the repo. Each service reads only the sections it needs.
type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	BigQuery BigQueryConfig
	Square   SquareConfig
	Sendgrid SendgridConfig
	Identity IdentityConfig
	Outbox   OutboxConfig
	Checkout CheckoutConfig
	Inbox    InboxConfig
	Security SecurityConfig
}

// Load parses MODACART_* environment variables and derives the DB DSN
// from the discrete host settings when no DSN is given.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MODACART_APP_ENV" required:"true"`
	Port         string `envconfig:"MODACART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MODACART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MODACART_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"MODACART_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MODACART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MODACART_DB_DSN"`
	Driver string `envconfig:"MODACART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MODACART_DB_HOST"`
	LegacyPort     int    `envconfig:"MODACART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MODACART_DB_USER"`
	LegacyPassword string `envconfig:"MODACART_DB_PASSWORD"`
	LegacyName     string `envconfig:"MODACART_DB_NAME"`
	LegacySSLMode  string `envconfig:"MODACART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MODACART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MODACART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MODACART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MODACART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MODACART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MODACART_REDIS_ADDR"`
	Password     string        `envconfig:"MODACART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MODACART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MODACART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MODACART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MODACART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MODACART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MODACART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MODACART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MODACART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MODACART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic               string `envconfig:"MODACART_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription        string `envconfig:"MODACART_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	RefundsTopic              string `envconfig:"MODACART_PUBSUB_REFUNDS_TOPIC" required:"true"`
	RefundsSubscription       string `envconfig:"MODACART_PUBSUB_REFUNDS_SUBSCRIPTION" required:"true"`
	NotificationTopic         string `envconfig:"MODACART_PUBSUB_NOTIFICATION_TOPIC" default:"mc-notification-events"`
	NotificationSubscription  string `envconfig:"MODACART_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsTopic            string `envconfig:"MODACART_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription     string `envconfig:"MODACART_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
	MaxOutstandingPerConsumer int    `envconfig:"MODACART_PUBSUB_MAX_OUTSTANDING" default:"4"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"MODACART_BIGQUERY_DATASET" default:"modacart"`
	OrderEventsTable string `envconfig:"MODACART_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type SquareConfig struct {
	AccessToken     string `envconfig:"MODACART_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string `envconfig:"MODACART_SQUARE_WEBHOOK_SECRET"`
	NotificationURL string `envconfig:"MODACART_SQUARE_NOTIFICATION_URL"`
	Env             string `envconfig:"MODACART_SQUARE_ENV" default:"sandbox"`
	LocationID      string `envconfig:"MODACART_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"MODACART_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MODACART_SENDGRID_FROM_EMAIL"`
	OpsEmail    string `envconfig:"MODACART_SENDGRID_OPS_EMAIL"`
}

// IdentityConfig points at the gateway that owns customer accounts.
// Contact lookups for transactional mail go through it.
type IdentityConfig struct {
	BaseURL string `envconfig:"MODACART_IDENTITY_BASE_URL"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MODACART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MODACART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MODACART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CheckoutConfig struct {
	PendingPaymentTTL time.Duration `envconfig:"MODACART_CHECKOUT_PENDING_PAYMENT_TTL" default:"30m"`
	SuccessURL        string        `envconfig:"MODACART_CHECKOUT_SUCCESS_URL" default:"/checkout/success"`
	FailureURL        string        `envconfig:"MODACART_CHECKOUT_FAILURE_URL" default:"/checkout/failure"`
}

type InboxConfig struct {
	Retention time.Duration `envconfig:"MODACART_INBOX_RETENTION" default:"720h"`
}

type SecurityConfig struct {
	// AddressKey is the hex-encoded 256-bit key sealing shipping addresses
	// at rest.
	AddressKey string `envconfig:"MODACART_ADDRESS_ENCRYPTION_KEY"`
}

// ensureDSN assembles a postgres URL from the discrete legacy
// variables. A full MODACART_DB_DSN always wins.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	values := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		query := dsn.Query()
		query.Set("sslmode", db.LegacySSLMode)
		dsn.RawQuery = query.Encode()
	}

	db.DSN = dsn.String()
	return nil
}
