package config

const (
	EnvPrefix = "JOHO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "JOHO_APP_ENV"
	EnvPort              = "JOHO_APP_PORT"
	EnvDBDSN             = "JOHO_DB_DSN"
	EnvDBHost            = "JOHO_DB_HOST"
	EnvDBUser            = "JOHO_DB_USER"
	EnvDBName            = "JOHO_DB_NAME"
	EnvRedisURL          = "JOHO_REDIS_URL"
	EnvJWTSecret         = "JOHO_JWT_SECRET"
	EnvJWTIssuer         = "JOHO_JWT_ISSUER"
	EnvGCPProject        = "JOHO_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "JOHO_PUBSUB_DOMAIN_TOPIC"
	EnvTaxRate           = "JOHO_TAX_RATE"
	EnvTimezone          = "JOHO_TIMEZONE"
	EnvCronInterval      = "JOHO_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
