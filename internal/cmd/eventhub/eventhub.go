// Package eventhub parses event hub command flags and launches the runtime.
package eventhub

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/questline/eventhub/internal/platform/cmd"
	"github.com/questline/eventhub/internal/services/eventhub/app"
)

// Config holds event hub command configuration.
type Config struct {
	HTTPPort    int           `env:"EVENTHUB_HTTP_PORT" envDefault:"8094"`
	GRPCPort    int           `env:"EVENTHUB_GRPC_PORT" envDefault:"8095"`
	DBPath      string        `env:"EVENTHUB_DB_PATH" envDefault:"data/eventhub.db"`
	CatalogPath string        `env:"EVENTHUB_CATALOG_PATH" envDefault:"data/catalog.json"`
	CatalogTTL  time.Duration `env:"EVENTHUB_CATALOG_TTL" envDefault:"2m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The ingest API HTTP port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The event hub SQLite database path")
	fs.StringVar(&cfg.CatalogPath, "catalog-path", cfg.CatalogPath, "The quest catalog JSON path")
	fs.DurationVar(&cfg.CatalogTTL, "catalog-ttl", cfg.CatalogTTL, "Catalog cache refresh interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the event hub runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEventHub, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			HTTPPort:    cfg.HTTPPort,
			GRPCPort:    cfg.GRPCPort,
			DBPath:      cfg.DBPath,
			CatalogPath: cfg.CatalogPath,
			CatalogTTL:  cfg.CatalogTTL,
		})
	})
}
