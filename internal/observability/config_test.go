package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDerivesFromAppConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      "sheetseries-worker",
		AppVersion:   "0.1.0",
		Environment:  "production",
		OTLPEndpoint: " collector:4317 ",
		Telemetry: config.TelemetryConfig{
			ServiceVersion: "0.2.0",
			OtelEnabled:    true,
			SamplingRatio:  0.25,
			SlowQuery:      2 * time.Second,
		},
	})

	assert.Equal(t, "sheetseries-worker", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "0.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
	assert.Equal(t, 2*time.Second, ProvideGormLogger(cfg).Config().SlowThreshold)
}

func TestLoadConfigDefaultsAndDebug(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			DeploymentEnv: "local",
			SamplingRatio: 3,
		},
	})
	assert.Equal(t, "sheetseries", cfg.ServiceName)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())

	cfg = LoadConfig(config.Config{
		Environment: "staging",
		Telemetry:   config.TelemetryConfig{LogLevel: "DEBUG"},
	})
	assert.True(t, cfg.Debug())
}

func TestGormLoggerFollowsSlowQueryAndDebug(t *testing.T) {
	quiet := ProvideGormLogger(Config{Environment: "production", SlowQuery: time.Second})
	assert.Equal(t, gormlogger.Warn, quiet.Config().Level)
	assert.Equal(t, time.Second, quiet.Config().SlowThreshold)

	loud := ProvideGormLogger(Config{Environment: "test"})
	assert.Equal(t, gormlogger.Info, loud.Config().Level)
	assert.Equal(t, 500*time.Millisecond, loud.Config().SlowThreshold)
}
