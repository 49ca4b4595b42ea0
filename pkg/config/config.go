package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GoogleMaps   GoogleMapsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Fulfillment  FulfillmentConfig
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
	if _, err := cfg.Fulfillment.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Fulfillment.TaxRateDecimal(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"JOHO_APP_ENV" required:"true"`
	Port         string `envconfig:"JOHO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"JOHO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"JOHO_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"JOHO_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"JOHO_SERVICE_KIND" default:"api"`
	// MetricsPort exposes /metrics on background workers; empty disables it.
	MetricsPort string `envconfig:"JOHO_METRICS_PORT"`
}

type DBConfig struct {
	DSN    string `envconfig:"JOHO_DB_DSN"`
	Driver string `envconfig:"JOHO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"JOHO_DB_HOST"`
	LegacyPort     int    `envconfig:"JOHO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"JOHO_DB_USER"`
	LegacyPassword string `envconfig:"JOHO_DB_PASSWORD"`
	LegacyName     string `envconfig:"JOHO_DB_NAME"`
	LegacySSLMode  string `envconfig:"JOHO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"JOHO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"JOHO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"JOHO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"JOHO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	ConnectAttempts int           `envconfig:"JOHO_DB_CONNECT_ATTEMPTS" default:"5"`
	SlowQuery       time.Duration `envconfig:"JOHO_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"JOHO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"JOHO_REDIS_ADDR"`
	Password     string        `envconfig:"JOHO_REDIS_PASSWORD"`
	DB           int           `envconfig:"JOHO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"JOHO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"JOHO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"JOHO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"JOHO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"JOHO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity service.
type JWTConfig struct {
	Secret string        `envconfig:"JOHO_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"JOHO_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"JOHO_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate          bool `envconfig:"JOHO_AUTO_MIGRATE" default:"false"`
	EnforceCreditLimit   bool `envconfig:"JOHO_FEATURE_ENFORCE_CREDIT_LIMIT" default:"true"`
	RecomputeOnViewRead  bool `envconfig:"JOHO_FEATURE_RECOMPUTE_ON_VIEW_READ" default:"true"`
	LowStockNotification bool `envconfig:"JOHO_FEATURE_LOW_STOCK_NOTIFICATION" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"JOHO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// ConsumerLease is how long a consumer may hold an event before another
	// delivery is allowed to take it over.
	ConsumerLease time.Duration `envconfig:"JOHO_EVENTING_CONSUMER_LEASE" default:"2m"`
}

type GoogleMapsConfig struct {
	APIKey         string        `envconfig:"JOHO_GOOGLE_MAPS_API_KEY"`
	RoutesBaseURL  string        `envconfig:"JOHO_GOOGLE_ROUTES_BASE_URL" default:"https://routes.googleapis.com"`
	RequestTimeout time.Duration `envconfig:"JOHO_GOOGLE_ROUTES_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"JOHO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"JOHO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"JOHO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"JOHO_PUBSUB_DOMAIN_TOPIC" required:"true"`
	NotificationTopic     string `envconfig:"JOHO_PUBSUB_NOTIFICATION_TOPIC" default:"joho-notification-events"`
	AccountingTopic       string `envconfig:"JOHO_PUBSUB_ACCOUNTING_TOPIC" default:"joho-accounting-sync"`
	AnalyticsSubscription string `envconfig:"JOHO_PUBSUB_ANALYTICS_SUBSCRIPTION"`
	AnalyticsMaxInFlight  int    `envconfig:"JOHO_PUBSUB_ANALYTICS_MAX_IN_FLIGHT" default:"100"`
	AnalyticsGoroutines   int    `envconfig:"JOHO_PUBSUB_ANALYTICS_GOROUTINES" default:"2"`
}

// Topics lists the configured outbound topics, skipping blanks.
func (c PubSubConfig) Topics() []string {
	return nonBlank(c.DomainTopic, c.NotificationTopic, c.AccountingTopic)
}

// Subscriptions lists the configured inbound subscriptions, skipping blanks.
func (c PubSubConfig) Subscriptions() []string {
	return nonBlank(c.AnalyticsSubscription)
}

func nonBlank(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type BigQueryConfig struct {
	Dataset               string `envconfig:"JOHO_BIGQUERY_DATASET" default:"fulfillment"`
	FulfillmentEventTable string `envconfig:"JOHO_BIGQUERY_FULFILLMENT_TABLE" default:"fulfillment_events"`
	CreateTables          bool   `envconfig:"JOHO_BIGQUERY_CREATE_TABLES" default:"false"`
	InsertAttempts        int    `envconfig:"JOHO_BIGQUERY_INSERT_ATTEMPTS" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"JOHO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"JOHO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"JOHO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// FulfillmentConfig carries the engine's business constants.
type FulfillmentConfig struct {
	TaxRate  string  `envconfig:"JOHO_TAX_RATE" default:"0.10"`
	Timezone string  `envconfig:"JOHO_TIMEZONE" default:"Australia/Melbourne"`
	DepotLat float64 `envconfig:"JOHO_DEPOT_LAT" default:"-37.8136"`
	DepotLng float64 `envconfig:"JOHO_DEPOT_LNG" default:"144.9631"`
	// DispatchHour is the local hour delivery vans leave the depot.
	DispatchHour int `envconfig:"JOHO_DISPATCH_HOUR" default:"6"`
}

// TaxRateDecimal parses the configured tax rate.
func (f FulfillmentConfig) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(f.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvTaxRate, f.TaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvTaxRate)
	}
	return rate, nil
}

// Location loads the timezone delivery dates are evaluated in.
func (f FulfillmentConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(f.Timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvTimezone, f.Timezone, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"JOHO_CRON_INTERVAL" default:"5m"`
	PackingInactivity    time.Duration `envconfig:"JOHO_PACKING_INACTIVITY_TIMEOUT" default:"30m"`
	RouteRefreshLookback time.Duration `envconfig:"JOHO_ROUTE_REFRESH_LOOKBACK" default:"24h"`
	LockTTL              time.Duration `envconfig:"JOHO_CRON_LOCK_TTL" default:"4m"`
	OutboxRetention      time.Duration `envconfig:"JOHO_OUTBOX_RETENTION" default:"720h"`
	// DLQRetention of zero keeps dead-lettered events forever.
	DLQRetention time.Duration `envconfig:"JOHO_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
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

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
