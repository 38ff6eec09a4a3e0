// Package config loads environment-driven configuration structs.
//
// Structs describe their variables with caarlos0/env tags:
//
//	type Config struct {
//		SweepInterval time.Duration `env:"NOTIFY_SWEEP_INTERVAL" envDefault:"60s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
//
// A .env file in the working directory is read once before the first parse.
// Each struct type is parsed once per process and served from a cache afterwards.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("nil pointer provided to config loader")
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
)

var (
	dotenvOnce sync.Once

	mu    sync.Mutex
	cache = map[reflect.Type]any{}
)

// Load fills v from the environment. The first successful parse for a type
// is cached and copied into later calls for the same type.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// A missing .env file is normal outside local development.
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = *v

	return nil
}

// MustLoad is like Load but panics on error. Use it for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
