package config

import "github.com/spf13/pflag"

const (
	FLAG_CONFIG_FILE = "config"

	FLAG_SERVER_ADDRESS    = "addr"
	FLAG_SERVER_DEBUG      = "debug"
	FLAG_SERVER_LOG_FORMAT = "log_format"

	FLAG_GEN_DRIVER      = "gen_driver"
	FLAG_GEN_ENDPOINT    = "gen_addr"
	FLAG_GEN_KEY         = "gen_key"
	FLAG_EMBED_DRIVER    = "embed_driver"
	FLAG_EMBED_ENDPOINT  = "embed_addr"
	FLAG_RERANK_DRIVER   = "rerank_driver"
	FLAG_RERANK_ENDPOINT = "rerank_addr"

	FLAG_DB_DRIVER    = "db_driver"
	FLAG_DB_DSN       = "db_dsn"
	FLAG_VECTORDB     = "vectordb"
	FLAG_VECTORDB_DSN = "vectordb_dsn"
	FLAG_HISTORY      = "history"
	FLAG_REDIS_URL    = "redis_url"
	FLAG_PROFILES     = "profiles"

	FLAG_OBSERVE_ENABLE          = "observe"
	FLAG_OBSERVE_TRACE_ENDPOINT  = "trace_endpoint"
	FLAG_OBSERVE_METRIC_ENDPOINT = "metric_endpoint"

	FLAG_CLIENT_ADDRESS = "server"
	FLAG_CLIENT_TOKEN   = "token"
)

var flagToConfigKeyMap = map[string]string{
	FLAG_SERVER_ADDRESS:    "server.address",
	FLAG_SERVER_DEBUG:      "server.debug",
	FLAG_SERVER_LOG_FORMAT: "server.log_format",

	FLAG_GEN_DRIVER:      "models.generative.driver",
	FLAG_GEN_ENDPOINT:    "models.generative.endpoint",
	FLAG_GEN_KEY:         "models.generative.api_key",
	FLAG_EMBED_DRIVER:    "models.embeddings.driver",
	FLAG_EMBED_ENDPOINT:  "models.embeddings.endpoint",
	FLAG_RERANK_DRIVER:   "models.rerank.driver",
	FLAG_RERANK_ENDPOINT: "models.rerank.endpoint",

	FLAG_DB_DRIVER:    "database.driver",
	FLAG_DB_DSN:       "database.dsn",
	FLAG_VECTORDB:     "vectordb.backend",
	FLAG_VECTORDB_DSN: "vectordb.dsn",
	FLAG_HISTORY:      "history.backend",
	FLAG_REDIS_URL:    "history.redis_url",
	FLAG_PROFILES:     "profiles_file",

	FLAG_OBSERVE_ENABLE:          "observability.enable",
	FLAG_OBSERVE_TRACE_ENDPOINT:  "observability.trace_endpoint",
	FLAG_OBSERVE_METRIC_ENDPOINT: "observability.metrics_endpoint",

	FLAG_CLIENT_ADDRESS: "client.address",
	FLAG_CLIENT_TOKEN:   "client.token",
}

// ServerFlags defines the flags of the server command.
func ServerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rca_server", pflag.ContinueOnError)
	fs.String(FLAG_CONFIG_FILE, "", "path to config file")

	// server
	fs.String(FLAG_SERVER_ADDRESS, "", "server address")
	fs.Bool(FLAG_SERVER_DEBUG, false, "debug log")
	fs.String(FLAG_SERVER_LOG_FORMAT, "", "log format, text or json")

	// models
	fs.String(FLAG_GEN_DRIVER, "", "generative driver (ollama, genai, openai)")
	fs.String(FLAG_GEN_ENDPOINT, "", "generative endpoint")
	fs.String(FLAG_GEN_KEY, "", "generative api key")
	fs.String(FLAG_EMBED_DRIVER, "", "embeddings driver (ollama, genai, openai)")
	fs.String(FLAG_EMBED_ENDPOINT, "", "embeddings endpoint")
	fs.String(FLAG_RERANK_DRIVER, "", "rerank driver (openai, cohere)")
	fs.String(FLAG_RERANK_ENDPOINT, "", "rerank endpoint")

	// storage
	fs.String(FLAG_DB_DRIVER, "", "database driver, sqlite or postgres")
	fs.String(FLAG_DB_DSN, "", "database dsn")
	fs.String(FLAG_VECTORDB, "", "vector store backend, pgvector or memory")
	fs.String(FLAG_VECTORDB_DSN, "", "pgvector connection string")
	fs.String(FLAG_HISTORY, "", "history backend, redis or memory")
	fs.String(FLAG_REDIS_URL, "", "redis url for history")
	fs.String(FLAG_PROFILES, "", "profiles yaml file")

	//observe
	fs.Bool(FLAG_OBSERVE_ENABLE, false, "enable observability default false")
	fs.String(FLAG_OBSERVE_TRACE_ENDPOINT, "", "otlp http trace endpoint")
	fs.String(FLAG_OBSERVE_METRIC_ENDPOINT, "", "otlp http metric endpoint")
	return fs
}

// ClientFlags defines the flags of commands talking to a running server.
func ClientFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rca_client", pflag.ContinueOnError)
	fs.String(FLAG_CONFIG_FILE, "", "path to config file")
	fs.String(FLAG_CLIENT_ADDRESS, "", "rca server address")
	fs.String(FLAG_CLIENT_TOKEN, "", "api token")
	return fs
}
