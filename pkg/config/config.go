package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Chain        ChainConfig
	Catalog      CatalogConfig
	Publish      PublishConfig
	Storage      StorageConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Minio        MinioConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SOUNDMINT_APP_ENV" required:"true"`
	Port         string   `envconfig:"SOUNDMINT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"SOUNDMINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SOUNDMINT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SOUNDMINT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN             string        `envconfig:"SOUNDMINT_DB_DSN"`
	MaxOpenConns    int           `envconfig:"SOUNDMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOUNDMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOUNDMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOUNDMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SQLitePath      string        `envconfig:"SOUNDMINT_DB_SQLITE_PATH" default:"soundmint.db"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOUNDMINT_REDIS_URL" required:"true"`
	Password     string        `envconfig:"SOUNDMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOUNDMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOUNDMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOUNDMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOUNDMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOUNDMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOUNDMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SOUNDMINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SOUNDMINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SOUNDMINT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// ChainConfig points the service at the relayer gateway and the marketplace contract.
type ChainConfig struct {
	Driver          string        `envconfig:"SOUNDMINT_CHAIN_DRIVER" default:"gateway"`
	GatewayURL      string        `envconfig:"SOUNDMINT_CHAIN_GATEWAY_URL"`
	GatewayAPIKey   string        `envconfig:"SOUNDMINT_CHAIN_GATEWAY_API_KEY"`
	ContractAddress string        `envconfig:"SOUNDMINT_CHAIN_CONTRACT_ADDRESS" required:"true"`
	RequestTimeout  time.Duration `envconfig:"SOUNDMINT_CHAIN_REQUEST_TIMEOUT" default:"15s"`
	ConfirmTimeout  time.Duration `envconfig:"SOUNDMINT_CHAIN_CONFIRM_TIMEOUT" default:"3m"`
	ConfirmPoll     time.Duration `envconfig:"SOUNDMINT_CHAIN_CONFIRM_POLL" default:"2s"`
	ReadRPS         float64       `envconfig:"SOUNDMINT_CHAIN_READ_RPS" default:"20"`
	ReadBurst       int           `envconfig:"SOUNDMINT_CHAIN_READ_BURST" default:"10"`
	ReadConcurrency int           `envconfig:"SOUNDMINT_CHAIN_READ_CONCURRENCY" default:"8"`
	PublisherRole   string        `envconfig:"SOUNDMINT_CHAIN_PUBLISHER_ROLE" default:"ARTIST_ROLE"`
	AdminRole       string        `envconfig:"SOUNDMINT_CHAIN_ADMIN_ROLE" default:"ADMIN_ROLE"`
}

type CatalogConfig struct {
	MaxProbe     int           `envconfig:"SOUNDMINT_CATALOG_MAX_PROBE" default:"50"`
	DisplayCap   int           `envconfig:"SOUNDMINT_CATALOG_DISPLAY_CAP" default:"20"`
	USDRate      string        `envconfig:"SOUNDMINT_CATALOG_USD_RATE" default:"2500"`
	PollInterval time.Duration `envconfig:"SOUNDMINT_CATALOG_POLL_INTERVAL" default:"30s"`
	CacheTTL     time.Duration `envconfig:"SOUNDMINT_CATALOG_CACHE_TTL" default:"45s"`
}

// USDRateDecimal parses the configured native-unit to USD multiplier.
func (c CatalogConfig) USDRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.USDRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvCatalogUSDRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvCatalogUSDRate)
	}
	return rate, nil
}

type PublishConfig struct {
	CheckpointTTL time.Duration `envconfig:"SOUNDMINT_PUBLISH_CHECKPOINT_TTL" default:"168h"`
	SessionTTL    time.Duration `envconfig:"SOUNDMINT_PUBLISH_SESSION_TTL" default:"6h"`
	MaxTracks     int           `envconfig:"SOUNDMINT_PUBLISH_MAX_TRACKS" default:"20"`
	// StaleAfter is how long an in-progress deploy may go without a ledger update.
	StaleAfter    time.Duration `envconfig:"SOUNDMINT_PUBLISH_STALE_AFTER" default:"30m"`
	SweepInterval time.Duration `envconfig:"SOUNDMINT_PUBLISH_SWEEP_INTERVAL" default:"5m"`
}

// RateLimitConfig throttles the publish write endpoints per account.
type RateLimitConfig struct {
	UploadWindow time.Duration `envconfig:"SOUNDMINT_RATE_LIMIT_UPLOAD_WINDOW" default:"1m"`
	UploadLimit  int           `envconfig:"SOUNDMINT_RATE_LIMIT_UPLOAD_LIMIT" default:"20"`
	DeployWindow time.Duration `envconfig:"SOUNDMINT_RATE_LIMIT_DEPLOY_WINDOW" default:"10m"`
	DeployLimit  int           `envconfig:"SOUNDMINT_RATE_LIMIT_DEPLOY_LIMIT" default:"5"`
}

type StorageConfig struct {
	Driver     string `envconfig:"SOUNDMINT_STORAGE_DRIVER" default:"minio"`
	MaxAudioMB int    `envconfig:"SOUNDMINT_STORAGE_MAX_AUDIO_MB" default:"200"`
	MaxCoverMB int    `envconfig:"SOUNDMINT_STORAGE_MAX_COVER_MB" default:"10"`
	TempDir    string `envconfig:"SOUNDMINT_STORAGE_TEMP_DIR"`
}

type GCPConfig struct {
	CredentialsJSON        string `envconfig:"SOUNDMINT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SOUNDMINT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName     string        `envconfig:"SOUNDMINT_GCS_BUCKET_NAME"`
	RequestTimeout time.Duration `envconfig:"SOUNDMINT_GCS_REQUEST_TIMEOUT" default:"10m"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"SOUNDMINT_MINIO_ENDPOINT"`
	AccessKey string `envconfig:"SOUNDMINT_MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"SOUNDMINT_MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"SOUNDMINT_MINIO_BUCKET" default:"soundmint"`
	Region    string `envconfig:"SOUNDMINT_MINIO_REGION"`
	UseSSL    bool   `envconfig:"SOUNDMINT_MINIO_USE_SSL" default:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SOUNDMINT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SOUNDMINT_AUTO_MIGRATE" default:"false"`
}

func (c *Config) validate() error {
	var errs error

	if !c.FeatureFlags.UseSQLite && strings.TrimSpace(c.DB.DSN) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s is required unless %s is set", EnvDBDSN, EnvUseSQLite))
	}

	switch strings.ToLower(c.Chain.Driver) {
	case ChainDriverGateway:
		if strings.TrimSpace(c.Chain.GatewayURL) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s is required for the gateway chain driver", EnvChainGatewayURL))
		}
	case ChainDriverMemory:
		if c.App.IsProd() {
			errs = multierr.Append(errs, errors.New("memory chain driver is not allowed in prod"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown %s %q", EnvChainDriver, c.Chain.Driver))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case StorageDriverMinio:
		if strings.TrimSpace(c.Minio.Endpoint) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s is required for the minio storage driver", EnvMinioEndpoint))
		}
	case StorageDriverGCS:
		if strings.TrimSpace(c.GCS.BucketName) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s is required for the gcs storage driver", EnvGCSBucket))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown %s %q", EnvStorageDriver, c.Storage.Driver))
	}

	if _, err := c.Catalog.USDRateDecimal(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Catalog.MaxProbe <= 0 {
		errs = multierr.Append(errs, errors.New("catalog max probe must be positive"))
	}
	if c.Catalog.DisplayCap <= 0 {
		errs = multierr.Append(errs, errors.New("catalog display cap must be positive"))
	}

	return errs
}
