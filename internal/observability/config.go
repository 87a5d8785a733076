package observability

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/meterbill/internal/config"
)

// Config is the telemetry view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	// InstanceID pairs the service with its snowflake node so ids in logs can be
	// traced back to the process that minted them.
	InstanceID   string
	StoreBackend string

	LogLevel  string
	LogFormat string
	Debug     bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "meterbill"
	}
	obs := cfg.Observability

	format := obs.LogFormat
	if format == "" {
		// Human-readable logs everywhere but production.
		format = "console"
		if cfg.IsProduction() {
			format = "json"
		}
	}
	protocol := obs.OTLPProtocol
	if protocol != "http" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:          service,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		InstanceID:           fmt.Sprintf("%s-%d", service, cfg.NodeID),
		StoreBackend:         cfg.StoreBackend,
		LogLevel:             obs.LogLevel,
		LogFormat:            format,
		Debug:                obs.LogLevel == "debug" || !cfg.IsProduction(),
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    min(max(obs.SamplingRatio, 0), 1),
	}
}
