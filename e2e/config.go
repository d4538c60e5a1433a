package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_GRPC_ADDR and E2E_HTTP_ADDR point at a running server. Suites skip when unset.
	GRPCAddr string `envconfig:"E2E_GRPC_ADDR"`
	HTTPAddr string `envconfig:"E2E_HTTP_ADDR"`
	// E2E_DEBUG_JSON dumps every received envelope
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
