package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_ADDR is the host:port of a running server, the suite is skipped when empty
	ServerAddr string `envconfig:"SERVER_ADDR"`
	GrpcAddr   string `envconfig:"GRPC_ADDR"`
	// AUTH_JWT_SECRET must match the server one when it requires tokens
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	// E2E_DEBUG_JSON allows dumping every frame and gRPC response as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
