package config

const EnvPrefix = "VOICECOMMERCE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	UISinkLocal  = "local"
	UISinkPubSub = "pubsub"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

const (
	EnvAppEnv   = "VOICECOMMERCE_APP_ENV"
	EnvPort     = "VOICECOMMERCE_APP_PORT"
	EnvLogLevel = "VOICECOMMERCE_LOG_LEVEL"

	EnvDBDSN  = "VOICECOMMERCE_DB_DSN"
	EnvDBHost = "VOICECOMMERCE_DB_HOST"
	EnvDBUser = "VOICECOMMERCE_DB_USER"
	EnvDBName = "VOICECOMMERCE_DB_NAME"

	EnvRedisURL = "VOICECOMMERCE_REDIS_URL"

	EnvLLMAPIKey = "VOICECOMMERCE_LLM_API_KEY"

	EnvMaxDiscounts           = "VOICECOMMERCE_MAX_DISCOUNTS"
	EnvMaxPercentageDiscounts = "VOICECOMMERCE_MAX_PERCENTAGE_DISCOUNTS"

	EnvPaymentSuccessRate   = "VOICECOMMERCE_PAYMENT_SUCCESS_RATE"
	EnvPaymentForcedOutcome = "VOICECOMMERCE_PAYMENT_FORCED_OUTCOME"

	EnvUISyncSink    = "VOICECOMMERCE_UISYNC_SINK"
	EnvSessionStore  = "VOICECOMMERCE_SESSION_STORE"
	EnvGCPProjectID  = "VOICECOMMERCE_GCP_PROJECT_ID"
	EnvPubSubUITopic = "VOICECOMMERCE_PUBSUB_UI_EVENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
