package config

const (
	EnvPrefix = "SOUNDMINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "SOUNDMINT_APP_ENV"
	EnvPort            = "SOUNDMINT_APP_PORT"
	EnvDBDSN           = "SOUNDMINT_DB_DSN"
	EnvRedisURL        = "SOUNDMINT_REDIS_URL"
	EnvJWTSecret       = "SOUNDMINT_JWT_SECRET"
	EnvJWTIssuer       = "SOUNDMINT_JWT_ISSUER"
	EnvChainDriver     = "SOUNDMINT_CHAIN_DRIVER"
	EnvChainGatewayURL = "SOUNDMINT_CHAIN_GATEWAY_URL"
	EnvChainContract   = "SOUNDMINT_CHAIN_CONTRACT_ADDRESS"
	EnvCatalogUSDRate  = "SOUNDMINT_CATALOG_USD_RATE"
	EnvStorageDriver   = "SOUNDMINT_STORAGE_DRIVER"
	EnvGCSBucket       = "SOUNDMINT_GCS_BUCKET_NAME"
	EnvMinioEndpoint   = "SOUNDMINT_MINIO_ENDPOINT"
	EnvMinioBucket     = "SOUNDMINT_MINIO_BUCKET"
	EnvUseSQLite       = "SOUNDMINT_USE_SQLITE"
)

const (
	ChainDriverGateway = "gateway"
	ChainDriverMemory  = "memory"

	StorageDriverMinio = "minio"
	StorageDriverGCS   = "gcs"
)
