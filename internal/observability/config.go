package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/sheetseries/internal/config"
)

// Config is the observability view of config.Config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	SlowQuery time.Duration
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "sheetseries"),
		Environment:          firstNonEmpty(t.DeploymentEnv, cfg.Environment),
		Version:              firstNonEmpty(t.ServiceVersion, cfg.AppVersion),
		LogLevel:             firstNonEmpty(t.LogLevel, "info"),
		LogFormat:            firstNonEmpty(t.LogFormat, "json"),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: firstNonEmpty(t.OtelProtocol, "grpc"),
		OtelSamplingRatio:    t.SamplingRatio,
		SlowQuery:            t.SlowQuery,
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 1
	}
	return out
}

// Debug is on for a debug log level or any non-production environment name
// that developers use locally.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
