package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for fields without a tag.
const EnvPrefix = "KRSAAS"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "KRSAAS_APP_ENV"
	EnvPort     = "KRSAAS_APP_PORT"
	EnvDBDSN    = "KRSAAS_DB_DSN"
	EnvDBHost   = "KRSAAS_DB_HOST"
	EnvDBUser   = "KRSAAS_DB_USER"
	EnvDBName   = "KRSAAS_DB_NAME"
	EnvRedisURL = "KRSAAS_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
