package config

// EnvPrefix is the envconfig prefix shared by every BearTask service.
const EnvPrefix = "BEARTASK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "BEARTASK_DB_DSN"
	EnvDBHost = "BEARTASK_DB_HOST"
	EnvDBUser = "BEARTASK_DB_USER"
	EnvDBName = "BEARTASK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
