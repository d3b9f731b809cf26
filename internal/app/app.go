// Package app arma el contenedor DI del servidor: elige el backend de
// storage por configuración, carga (o genera) el JWKS y construye los
// engines. Los engines son agnósticos del backend; toda la selección vive
// acá.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dropDatabas3/indieauth/internal/config"
	"github.com/dropDatabas3/indieauth/internal/jwt"
	"github.com/dropDatabas3/indieauth/internal/metrics"
	"github.com/dropDatabas3/indieauth/internal/oauth"
	"github.com/dropDatabas3/indieauth/internal/observability/logger"
	"github.com/dropDatabas3/indieauth/internal/record"
	"github.com/dropDatabas3/indieauth/internal/storage"
	"github.com/dropDatabas3/indieauth/internal/storage/fsjson"
	"github.com/dropDatabas3/indieauth/internal/storage/memory"
	"github.com/dropDatabas3/indieauth/internal/storage/postgres"
	"github.com/dropDatabas3/indieauth/internal/storage/sqldb"
	"github.com/dropDatabas3/indieauth/internal/storage/sqlite"
	"github.com/dropDatabas3/indieauth/internal/util/atomicwrite"
)

// Stores agrupa los cinco stores tipados sobre el backend elegido.
type Stores struct {
	Codes    storage.Store[record.AuthorizationCode]
	Access   storage.Store[record.AccessToken]
	Refresh  storage.Store[record.RefreshToken]
	Clients  storage.Store[record.ClientApplication]
	Profiles storage.Store[record.UserProfile]
}

// Container es el contenedor DI simple que consumen los endpoints.
type Container struct {
	Cfg    *config.Config
	Stores *Stores
	Codes  *oauth.CodeEngine
	Tokens *oauth.TokenEngine
	Keys   *jwt.JWKS

	closeFn func() error
}

// Close cierra los recursos del backend (si los hay).
func (c *Container) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// New construye el contenedor completo a partir de la configuración.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "indieauth"})
	log := logger.Named("app")

	keys, err := loadOrGenerateKeys(cfg.JWT.KeysPath)
	if err != nil {
		return nil, err
	}

	c := &Container{Cfg: cfg, Keys: keys}
	var tx storage.Transactor
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("app: create data dir: %w", err)
		}
		db, err := sqlite.Open(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, err
		}
		c.Stores = sqlStores(db)
		c.closeFn = db.Close
		tx = db
	case config.BackendPostgres:
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		c.Stores = sqlStores(db)
		c.closeFn = db.Close
		tx = db
	case config.BackendFSJSON, config.BackendFSJSONL:
		format := fsjson.FormatJSON
		if cfg.Storage.Backend == config.BackendFSJSONL {
			format = fsjson.FormatJSONL
		}
		s, err := fileStores(cfg.Storage.File.Root, format)
		if err != nil {
			return nil, err
		}
		c.Stores = s
	case config.BackendMem:
		db := memory.NewDB()
		c.Stores = &Stores{
			Codes:    memory.NewStore[record.AuthorizationCode](db, record.AuthorizationCodes),
			Access:   memory.NewStore[record.AccessToken](db, record.AccessTokens),
			Refresh:  memory.NewStore[record.RefreshToken](db, record.RefreshTokens),
			Clients:  memory.NewStore[record.ClientApplication](db, record.ClientApplications),
			Profiles: memory.NewStore[record.UserProfile](db, record.UserProfiles),
		}
	default:
		return nil, fmt.Errorf("app: unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(nil); err != nil {
			return nil, fmt.Errorf("app: register metrics: %w", err)
		}
		c.Stores = instrumentStores(c.Stores, cfg.Storage.Backend)
	}

	c.Codes = oauth.NewCodeEngine(c.Stores.Codes)
	c.Tokens = oauth.NewTokenEngine(c.Stores.Access, c.Stores.Refresh, tx)

	log.Info("container ready", logger.Backend(cfg.Storage.Backend), logger.Int("keys", len(keys.Keys)))
	return c, nil
}

func sqlStores(db *sqldb.DB) *Stores {
	return &Stores{
		Codes:    sqldb.NewStore[record.AuthorizationCode](db, record.AuthorizationCodes),
		Access:   sqldb.NewStore[record.AccessToken](db, record.AccessTokens),
		Refresh:  sqldb.NewStore[record.RefreshToken](db, record.RefreshTokens),
		Clients:  sqldb.NewStore[record.ClientApplication](db, record.ClientApplications),
		Profiles: sqldb.NewStore[record.UserProfile](db, record.UserProfiles),
	}
}

func fileStores(root string, format fsjson.Format) (*Stores, error) {
	codes, err := fsjson.NewStore[record.AuthorizationCode](root, record.AuthorizationCodes, format)
	if err != nil {
		return nil, err
	}
	access, err := fsjson.NewStore[record.AccessToken](root, record.AccessTokens, format)
	if err != nil {
		return nil, err
	}
	refresh, err := fsjson.NewStore[record.RefreshToken](root, record.RefreshTokens, format)
	if err != nil {
		return nil, err
	}
	clients, err := fsjson.NewStore[record.ClientApplication](root, record.ClientApplications, format)
	if err != nil {
		return nil, err
	}
	profiles, err := fsjson.NewStore[record.UserProfile](root, record.UserProfiles, format)
	if err != nil {
		return nil, err
	}
	return &Stores{Codes: codes, Access: access, Refresh: refresh, Clients: clients, Profiles: profiles}, nil
}

func instrumentStores(s *Stores, backend string) *Stores {
	return &Stores{
		Codes:    metrics.InstrumentStore(s.Codes, backend, record.AuthorizationCodes.Name),
		Access:   metrics.InstrumentStore(s.Access, backend, record.AccessTokens.Name),
		Refresh:  metrics.InstrumentStore(s.Refresh, backend, record.RefreshTokens.Name),
		Clients:  metrics.InstrumentStore(s.Clients, backend, record.ClientApplications.Name),
		Profiles: metrics.InstrumentStore(s.Profiles, backend, record.UserProfiles.Name),
	}
}

// loadOrGenerateKeys lee el JWKS privado de disco, o genera uno de dos claves
// y lo persiste (primer arranque).
func loadOrGenerateKeys(path string) (*jwt.JWKS, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		var set jwt.JWKS
		if err := json.Unmarshal(b, &set); err != nil {
			return nil, fmt.Errorf("app: parse jwks %s: %w", path, err)
		}
		return &set, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("app: read jwks %s: %w", path, err)
	}

	set, err := jwt.GenerateJWKS(2)
	if err != nil {
		return nil, fmt.Errorf("app: generate jwks: %w", err)
	}
	out, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("app: create keys dir: %w", err)
	}
	if err := atomicwrite.AtomicWriteFile(path, out, 0o600); err != nil {
		return nil, fmt.Errorf("app: write jwks %s: %w", path, err)
	}
	return set, nil
}
