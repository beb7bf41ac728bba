// Package config binds the brain's runtime configuration from environment
// variables and an optional config file, following the teacher's viper
// conventions (§6 "Environment").
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of options the brain boots with (§6).
type Config struct {
	Port        string
	DataDir     string
	AuthToken   string
	AgentName   string
	CORSOrigins []string

	BrainRole          string
	BrainVersion       string
	BrainTransferEnabled bool

	NATSURL string

	AnthropicAPIKey    string
	AnthropicOAuthToken string
	OpenRouterAPIKey   string

	ModelRouterConfigPath string
	DefaultModel          string
	ObserverModel         string

	TaskAllowedPaths []string

	MCPRegistryURL string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	DiscordBotToken string
	DoorMode        string
}

// Init registers defaults and environment bindings. Call once before Load.
func Init() {
	viper.SetDefault("port", "8080")
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("agent_name", "baker-street")
	viper.SetDefault("brain_role", "active")
	viper.SetDefault("brain_transfer_enabled", false)
	viper.SetDefault("nats_url", "nats://127.0.0.1:4222")
	viper.SetDefault("default_model", "")
	viper.SetDefault("observer_model", "")
	viper.SetDefault("qdrant_port", 6334)
	viper.SetDefault("door_mode", "open")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.baker-street")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	bindEnv("port", "PORT")
	bindEnv("data_dir", "DATA_DIR")
	bindEnv("auth_token", "AUTH_TOKEN")
	bindEnv("agent_name", "AGENT_NAME")
	bindEnv("cors_origins", "CORS_ORIGINS")
	bindEnv("brain_role", "BRAIN_ROLE")
	bindEnv("brain_version", "BRAIN_VERSION")
	bindEnv("brain_transfer_enabled", "BRAIN_TRANSFER_ENABLED")
	bindEnv("nats_url", "NATS_URL")
	bindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	bindEnv("anthropic_oauth_token", "ANTHROPIC_OAUTH_TOKEN")
	bindEnv("openrouter_api_key", "OPENROUTER_API_KEY")
	bindEnv("model_router_config_path", "MODEL_ROUTER_CONFIG_PATH")
	bindEnv("default_model", "DEFAULT_MODEL")
	bindEnv("observer_model", "OBSERVER_MODEL")
	bindEnv("task_allowed_paths", "TASK_ALLOWED_PATHS")
	bindEnv("mcp_registry_url", "MCP_REGISTRY_URL")
	bindEnv("qdrant_host", "QDRANT_HOST")
	bindEnv("qdrant_port", "QDRANT_PORT")
	bindEnv("qdrant_collection", "QDRANT_COLLECTION")
	bindEnv("discord_bot_token", "DISCORD_BOT_TOKEN")
	bindEnv("door_mode", "DOOR_MODE")
}

func bindEnv(key, envVar string) {
	_ = viper.BindEnv(key, envVar)
}

// Load reads the bound configuration into a Config value (§6 "Environment").
// Comma lists (CORS_ORIGINS, TASK_ALLOWED_PATHS) are split and empty entries
// dropped; an absent CORS_ORIGINS means dev-permissive, an absent
// TASK_ALLOWED_PATHS means deny all mounts (§4.5, §6).
func Load() Config {
	return Config{
		Port:                 viper.GetString("port"),
		DataDir:              viper.GetString("data_dir"),
		AuthToken:            viper.GetString("auth_token"),
		AgentName:            viper.GetString("agent_name"),
		CORSOrigins:          splitList(viper.GetString("cors_origins")),
		BrainRole:            viper.GetString("brain_role"),
		BrainVersion:         viper.GetString("brain_version"),
		BrainTransferEnabled: viper.GetBool("brain_transfer_enabled"),
		NATSURL:              viper.GetString("nats_url"),
		AnthropicAPIKey:      viper.GetString("anthropic_api_key"),
		AnthropicOAuthToken:  viper.GetString("anthropic_oauth_token"),
		OpenRouterAPIKey:     viper.GetString("openrouter_api_key"),
		ModelRouterConfigPath: viper.GetString("model_router_config_path"),
		DefaultModel:         viper.GetString("default_model"),
		ObserverModel:        viper.GetString("observer_model"),
		TaskAllowedPaths:     splitList(viper.GetString("task_allowed_paths")),
		MCPRegistryURL:       viper.GetString("mcp_registry_url"),
		QdrantHost:           viper.GetString("qdrant_host"),
		QdrantPort:           viper.GetInt("qdrant_port"),
		QdrantCollection:     viper.GetString("qdrant_collection"),
		DiscordBotToken:      viper.GetString("discord_bot_token"),
		DoorMode:             viper.GetString("door_mode"),
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
