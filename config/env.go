package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds secrets and endpoints taken from the environment.
type Env struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string
	Environment      string
	PostgresDSN      string
	RedisAddr        string
	RedisPassword    string
}

// LoadEnv loads path into the process environment when it exists and reads the variables.
// Variables already set in the environment win over the file.
func LoadEnv(path string) Env {
	if path != "" {
		_ = godotenv.Load(path)
	}

	return Env{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BybitAPIKey:      os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:   os.Getenv("BYBIT_API_SECRET"),
		Environment:      os.Getenv("ENVIRONMENT"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
	}
}

// Testnet reports whether exchanges must be reached on their test networks.
func (e Env) Testnet() bool {
	return e.Environment != "production"
}
