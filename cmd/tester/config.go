package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr string        `envconfig:"TESTER_SERVER_ADDR" default:"localhost:8000"`
	Room       string        `envconfig:"TESTER_ROOM" default:"general"`
	Clients    int           `envconfig:"TESTER_CLIENTS" default:"10"`
	Messages   int           `envconfig:"TESTER_MESSAGES" default:"100"`
	Interval   time.Duration `envconfig:"TESTER_INTERVAL" default:"10ms"`
	Timeout    time.Duration `envconfig:"TESTER_TIMEOUT" default:"30s"`
	// Must match the server AUTH_JWT_SECRET when tokens are required
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	Colours   bool   `envconfig:"TESTER_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
