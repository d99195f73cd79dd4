package config

import "time"

// BridgeConfig configures the outbound WhatsApp bridge.
type BridgeConfig struct {
	// Provider is "sim" or "http".
	Provider string

	// URL and Token configure the http provider.
	URL   string
	Token string

	Timeout time.Duration
}

func loadBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Provider: getEnv("WA_BRIDGE_PROVIDER", "sim"),
		URL:      getEnv("WA_BRIDGE_URL", "http://localhost:8100"),
		Token:    getEnv("WA_BRIDGE_TOKEN", ""),
		Timeout:  getEnvDuration("WA_BRIDGE_TIMEOUT", 30*time.Second),
	}
}
