// migrate aplica el schema del backend relacional configurado. El DDL es
// idempotente (CREATE TABLE IF NOT EXISTS); correrlo de nuevo es inocuo.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/dropDatabas3/indieauth/internal/config"
	"github.com/dropDatabas3/indieauth/internal/storage/postgres"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlite"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "ruta a config.yaml (opcional, env manda)")
		flagTimeout = flag.Duration("timeout", 30*time.Second, "timeout total")
	)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("migrate: config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		defer db.Close()
		log.Printf("migrate: sqlite ok (%s)", cfg.Storage.SQLite.Path)
	case config.BackendPostgres:
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		defer db.Close()
		log.Println("migrate: postgres ok")
	default:
		log.Fatalf("migrate: backend %q no es relacional, nada que migrar", cfg.Storage.Backend)
	}
}
