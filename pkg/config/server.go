package config

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int
	APIKey      string
	CORSOrigins []string
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:        getEnvInt("PORT", 3000),
		APIKey:      getEnv("API_KEY", ""),
		CORSOrigins: getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
	}
}
