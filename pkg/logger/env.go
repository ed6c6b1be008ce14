package logger

import (
	"os"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// DetectEnv reads RELAY_ENV, then APP_ENV.
func DetectEnv() Env {
	raw := os.Getenv("RELAY_ENV")
	if raw == "" {
		raw = os.Getenv("APP_ENV")
	}

	return ParseEnv(raw)
}

func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod", "pre-production":
		return EnvStage
	default:
		return EnvDev
	}
}
