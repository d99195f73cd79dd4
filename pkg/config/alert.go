package config

// AlertConfig configures operator alerts for permanently failed jobs.
type AlertConfig struct {
	// Provider is "none", "console" or "ses".
	Provider    string
	FromAddress string
	FromName    string
	To          []string
	AWSRegion   string
}

func loadAlertConfig() AlertConfig {
	return AlertConfig{
		Provider:    getEnv("ALERT_PROVIDER", "console"),
		FromAddress: getEnv("ALERT_FROM_ADDRESS", "dispatch@localhost"),
		FromName:    getEnv("ALERT_FROM_NAME", "Dispatch"),
		To:          getEnvStringSlice("ALERT_TO", nil),
		AWSRegion:   getEnv("ALERT_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
	}
}
