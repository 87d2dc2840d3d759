package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/avalon?sslmode=disable"`
	// EvictionGrace is how long a fully disconnected in-progress game waits
	// for a reconnect before it is torn down.
	EvictionGrace time.Duration `env:"EVICTION_GRACE" envDefault:"5m"`
	// Dev disables websocket origin checks for local frontend work.
	Dev bool `env:"DEV" envDefault:"false"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return env.ParseAs[Config]()
}
