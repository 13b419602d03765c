// Package userdir parses directory service flags and launches the service.
package userdir

import (
	"context"
	"flag"

	server "github.com/avellar/userdir/internal/directory/app"
	entrypoint "github.com/avellar/userdir/internal/platform/cmd"
)

// Config holds userdir command configuration.
type Config struct {
	Port int `env:"USERDIR_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The directory HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the directory HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceUserDir, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
