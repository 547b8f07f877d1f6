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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	LLM          LLMConfig
	Orchestrator OrchestratorConfig
	Discounts    DiscountConfig
	Delivery     DeliveryConfig
	Payments     PaymentsConfig
	Receipts     ReceiptsConfig
	UISync       UISyncConfig
	Session      SessionConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Payments.SuccessRate < 0 || c.Payments.SuccessRate > 1 {
		return fmt.Errorf("%s must be within [0,1]", EnvPaymentSuccessRate)
	}
	switch strings.ToLower(c.Payments.ForcedOutcome) {
	case "", "success", "failure":
	default:
		return fmt.Errorf("%s must be success or failure", EnvPaymentForcedOutcome)
	}
	switch c.UISync.Sink {
	case UISinkLocal:
	case UISinkPubSub:
		if c.PubSub.UIEventsTopic == "" || c.GCP.ProjectID == "" {
			return fmt.Errorf("%s and %s are required for the pubsub sink", EnvPubSubUITopic, EnvGCPProjectID)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvUISyncSink, c.UISync.Sink)
	}
	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if !c.Redis.Configured() {
			return fmt.Errorf("%s is required for the redis session store", EnvRedisURL)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvSessionStore, c.Session.Store)
	}
	if c.Discounts.MaxPercentageDiscounts > c.Discounts.MaxDiscounts {
		return fmt.Errorf("%s cannot exceed %s", EnvMaxPercentageDiscounts, EnvMaxDiscounts)
	}
	return nil
}

type AppConfig struct {
	Env          string   `envconfig:"VOICECOMMERCE_APP_ENV" required:"true"`
	Port         string   `envconfig:"VOICECOMMERCE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"VOICECOMMERCE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"VOICECOMMERCE_LOG_WARN_STACK" default:"false"`
	Locale       string   `envconfig:"VOICECOMMERCE_LOCALE" default:"ko"`
	Currency     string   `envconfig:"VOICECOMMERCE_CURRENCY" default:"KRW"`
	CORSOrigins  []string `envconfig:"VOICECOMMERCE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VOICECOMMERCE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOICECOMMERCE_DB_DSN"`
	Driver string `envconfig:"VOICECOMMERCE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VOICECOMMERCE_DB_HOST"`
	LegacyPort     int    `envconfig:"VOICECOMMERCE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOICECOMMERCE_DB_USER"`
	LegacyPassword string `envconfig:"VOICECOMMERCE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOICECOMMERCE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOICECOMMERCE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOICECOMMERCE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOICECOMMERCE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOICECOMMERCE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOICECOMMERCE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOICECOMMERCE_REDIS_URL"`
	Address      string        `envconfig:"VOICECOMMERCE_REDIS_ADDR"`
	Password     string        `envconfig:"VOICECOMMERCE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOICECOMMERCE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOICECOMMERCE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOICECOMMERCE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOICECOMMERCE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOICECOMMERCE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOICECOMMERCE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis endpoint was supplied.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VOICECOMMERCE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VOICECOMMERCE_AUTO_MIGRATE" default:"false"`
}

type LLMConfig struct {
	APIKey      string        `envconfig:"VOICECOMMERCE_LLM_API_KEY"`
	BaseURL     string        `envconfig:"VOICECOMMERCE_LLM_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `envconfig:"VOICECOMMERCE_LLM_MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"VOICECOMMERCE_LLM_TEMPERATURE" default:"0.3"`
	MaxTokens   int           `envconfig:"VOICECOMMERCE_LLM_MAX_TOKENS" default:"1024"`
	HTTPTimeout time.Duration `envconfig:"VOICECOMMERCE_LLM_HTTP_TIMEOUT" default:"45s"`
}

// Enabled reports whether a remote model is configured; without one the
// orchestrator serves turns through the rule-based intent path.
func (l LLMConfig) Enabled() bool {
	return strings.TrimSpace(l.APIKey) != ""
}

type OrchestratorConfig struct {
	RequestsPerMinute  int           `envconfig:"VOICECOMMERCE_ORCH_REQUESTS_PER_MINUTE" default:"20"`
	TokensPerMinute    int           `envconfig:"VOICECOMMERCE_ORCH_TOKENS_PER_MINUTE" default:"40000"`
	RequestsPerHour    int           `envconfig:"VOICECOMMERCE_ORCH_REQUESTS_PER_HOUR" default:"300"`
	TokensPerHour      int           `envconfig:"VOICECOMMERCE_ORCH_TOKENS_PER_HOUR" default:"400000"`
	SummarizeThreshold int           `envconfig:"VOICECOMMERCE_ORCH_SUMMARIZE_THRESHOLD" default:"24000"`
	HardContextLimit   int           `envconfig:"VOICECOMMERCE_ORCH_HARD_CONTEXT_LIMIT" default:"32000"`
	KeepRecentTurns    int           `envconfig:"VOICECOMMERCE_ORCH_KEEP_RECENT_TURNS" default:"6"`
	CallTimeout        time.Duration `envconfig:"VOICECOMMERCE_ORCH_CALL_TIMEOUT" default:"30s"`
	MaxRetryAttempts   int           `envconfig:"VOICECOMMERCE_ORCH_MAX_RETRY_ATTEMPTS" default:"3"`
	BaseBackoff        time.Duration `envconfig:"VOICECOMMERCE_ORCH_BASE_BACKOFF" default:"1s"`
	MaxBackoff         time.Duration `envconfig:"VOICECOMMERCE_ORCH_MAX_BACKOFF" default:"30s"`
	FunctionRetryDelay time.Duration `envconfig:"VOICECOMMERCE_ORCH_FUNCTION_RETRY_DELAY" default:"1s"`
	DispatchRetries    int           `envconfig:"VOICECOMMERCE_ORCH_DISPATCH_RETRIES" default:"2"`
	DispatchBackoff    time.Duration `envconfig:"VOICECOMMERCE_ORCH_DISPATCH_BACKOFF" default:"200ms"`
	DispatchBackoffCap time.Duration `envconfig:"VOICECOMMERCE_ORCH_DISPATCH_BACKOFF_CAP" default:"2s"`
	MaxToolRounds      int           `envconfig:"VOICECOMMERCE_ORCH_MAX_TOOL_ROUNDS" default:"3"`
	MinConfidence      float64       `envconfig:"VOICECOMMERCE_ORCH_MIN_TRANSCRIPT_CONFIDENCE" default:"0.5"`
}

type DiscountConfig struct {
	MaxDiscounts           int `envconfig:"VOICECOMMERCE_MAX_DISCOUNTS" default:"3"`
	MaxPercentageDiscounts int `envconfig:"VOICECOMMERCE_MAX_PERCENTAGE_DISCOUNTS" default:"1"`
}

type DeliveryConfig struct {
	BaseFee               int64   `envconfig:"VOICECOMMERCE_DELIVERY_BASE_FEE" default:"3000"`
	FreeDistanceKM        float64 `envconfig:"VOICECOMMERCE_DELIVERY_FREE_DISTANCE_KM" default:"5"`
	DistanceStepKM        float64 `envconfig:"VOICECOMMERCE_DELIVERY_DISTANCE_STEP_KM" default:"2"`
	DistanceStepFee       int64   `envconfig:"VOICECOMMERCE_DELIVERY_DISTANCE_STEP_FEE" default:"1000"`
	FreeWeightKG          float64 `envconfig:"VOICECOMMERCE_DELIVERY_FREE_WEIGHT_KG" default:"5"`
	WeightStepKG          float64 `envconfig:"VOICECOMMERCE_DELIVERY_WEIGHT_STEP_KG" default:"2"`
	WeightStepFee         int64   `envconfig:"VOICECOMMERCE_DELIVERY_WEIGHT_STEP_FEE" default:"500"`
	ItemWeightKG          float64 `envconfig:"VOICECOMMERCE_DELIVERY_ITEM_WEIGHT_KG" default:"0.5"`
	PeakSurcharge         int64   `envconfig:"VOICECOMMERCE_DELIVERY_PEAK_SURCHARGE" default:"1000"`
	FreeDeliveryThreshold int64   `envconfig:"VOICECOMMERCE_DELIVERY_DISCOUNT_THRESHOLD" default:"30000"`
	ThresholdDiscount     int64   `envconfig:"VOICECOMMERCE_DELIVERY_THRESHOLD_DISCOUNT" default:"2000"`
	TaxRatePercent        int64   `envconfig:"VOICECOMMERCE_TAX_RATE_PERCENT" default:"10"`
}

type PaymentsConfig struct {
	SessionTTL      time.Duration `envconfig:"VOICECOMMERCE_PAYMENT_SESSION_TTL" default:"10m"`
	ProcessingDelay time.Duration `envconfig:"VOICECOMMERCE_PAYMENT_PROCESSING_DELAY" default:"2s"`
	SuccessRate     float64       `envconfig:"VOICECOMMERCE_PAYMENT_SUCCESS_RATE" default:"0.9"`
	ForcedOutcome   string        `envconfig:"VOICECOMMERCE_PAYMENT_FORCED_OUTCOME"`
	PollInterval    time.Duration `envconfig:"VOICECOMMERCE_PAYMENT_POLL_INTERVAL" default:"1s"`
	PollAttempts    int           `envconfig:"VOICECOMMERCE_PAYMENT_POLL_ATTEMPTS" default:"30"`
}

type ReceiptsConfig struct {
	Secret string        `envconfig:"VOICECOMMERCE_RECEIPT_SECRET" default:"dev-receipt-secret"`
	Issuer string        `envconfig:"VOICECOMMERCE_RECEIPT_ISSUER" default:"voicecommerce"`
	TTL    time.Duration `envconfig:"VOICECOMMERCE_RECEIPT_TTL" default:"720h"`
}

type UISyncConfig struct {
	Sink          string        `envconfig:"VOICECOMMERCE_UISYNC_SINK" default:"local"`
	BufferSize    int64         `envconfig:"VOICECOMMERCE_UISYNC_BUFFER_SIZE" default:"64"`
	ToastDuration time.Duration `envconfig:"VOICECOMMERCE_UISYNC_TOAST_DURATION" default:"3s"`
}

type SessionConfig struct {
	Store string        `envconfig:"VOICECOMMERCE_SESSION_STORE" default:"memory"`
	TTL   time.Duration `envconfig:"VOICECOMMERCE_SESSION_TTL" default:"30m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VOICECOMMERCE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VOICECOMMERCE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VOICECOMMERCE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	UIEventsTopic string `envconfig:"VOICECOMMERCE_PUBSUB_UI_EVENTS_TOPIC"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VOICECOMMERCE_CRON_INTERVAL" default:"30s"`
	LockTTL  time.Duration `envconfig:"VOICECOMMERCE_CRON_LOCK_TTL" default:"25s"`
	RunInAPI bool          `envconfig:"VOICECOMMERCE_CRON_RUN_IN_API" default:"true"`
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
