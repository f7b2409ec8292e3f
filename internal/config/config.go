package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

// defaultExpectedMembers is the stock seven-file daily batch. go-env splits
// struct tags on commas, so a comma-separated list cannot be a tag default;
// Load applies it when EXPECTED_MEMBERS is unset.
var defaultExpectedMembers = []string{
	"accounts", "balances", "cards", "customers", "ledger", "merchants", "transactions",
}

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	ArtifactBucket    string `env:"ARTIFACT_BUCKET,required=true"`
	ArtifactRegion    string `env:"ARTIFACT_REGION,default=eu-west-1"`
	JobServiceURL     string `env:"JOB_SERVICE_URL,required=true"`
	TransformJobName  string `env:"TRANSFORM_JOB_NAME,default=daily-transform"`
	AlertWebhookURL   string `env:"ALERT_WEBHOOK_URL"`
	ExpectedMembers   string `env:"EXPECTED_MEMBERS"`
	DecodePolicy      string `env:"DECODE_POLICY,default=reject"`
	DeadlineHourUTC   int    `env:"DEADLINE_HOUR_UTC,default=12"`
	DeadlineScanSec   int    `env:"DEADLINE_SCAN_SEC,default=300"`
	RetentionDays     int    `env:"RETENTION_DAYS,default=14"`
	StoreWritesPerSec int    `env:"STORE_WRITES_PER_SEC,default=50"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if strings.TrimSpace(cfg.ExpectedMembers) == "" {
		cfg.ExpectedMembers = strings.Join(defaultExpectedMembers, ",")
	}

	return &cfg, nil
}

// ExpectedMemberList splits the configured expected member set.
func (c *Config) ExpectedMemberList() []string {
	return strings.Split(c.ExpectedMembers, ",")
}
