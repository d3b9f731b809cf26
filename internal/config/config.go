// Package config carga la configuración del servidor: config.yaml más
// overrides por variables de entorno (con .env opcional vía godotenv).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/indieauth/internal/jwt"
	"github.com/dropDatabas3/indieauth/internal/security/secretbox"
)

// Backends válidos para storage.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFSJSON   = "fs-json"
	BackendFSJSONL  = "fs-jsonl"
	BackendMem      = "mem"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda "dev".
	App struct {
		// dev | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Storage struct {
		// sqlite | postgres | fs-json | fs-jsonl | mem
		Backend string `yaml:"backend"`
		SQLite  struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Postgres struct {
			// DSN acepta texto plano o el formato nonce|ciphertext de
			// secretbox (descifrado con SECRETBOX_MASTER_KEY).
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
		File struct {
			Root string `yaml:"root"`
		} `yaml:"file"`
	} `yaml:"storage"`

	JWT struct {
		Issuer  string `yaml:"issuer"`
		JWKSURL string `yaml:"jwks_url"`
		// Duraciones legibles: acepta "72 hours" / "30 days" además de "72h".
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
		// Archivo JWKS con material privado (seeds Ed25519).
		KeysPath string `yaml:"keys_path"`
	} `yaml:"jwt"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	// .env es opcional; si no existe se sigue con el entorno del proceso.
	_ = godotenv.Load()

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMem
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "data/indieauth.db"
	}
	if c.Storage.File.Root == "" {
		c.Storage.File.Root = "data"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "12 hours"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "30 days"
	}
	if c.JWT.KeysPath == "" {
		c.JWT.KeysPath = "data/jwks.json"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvBool(key string) (bool, bool) {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("STORAGE_BACKEND"); ok {
		c.Storage.Backend = v
	}
	if v, ok := getEnvStr("SQLITE_PATH"); ok {
		c.Storage.SQLite.Path = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}
	if v, ok := getEnvStr("STORAGE_FILE_ROOT"); ok {
		c.Storage.File.Root = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWKS_URL"); ok {
		c.JWT.JWKSURL = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvStr("JWT_KEYS_PATH"); ok {
		c.JWT.KeysPath = v
	}
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

func (c *Config) Validate() error {
	switch c.App.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("config: app_env must be dev or prod, got %q", c.App.Env)
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendPostgres, BackendFSJSON, BackendFSJSONL, BackendMem:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres backend requires a dsn")
	}
	if _, err := jwt.ParseDuration(c.JWT.AccessTTL); err != nil {
		return fmt.Errorf("config: jwt.access_ttl: %w", err)
	}
	if _, err := jwt.ParseDuration(c.JWT.RefreshTTL); err != nil {
		return fmt.Errorf("config: jwt.refresh_ttl: %w", err)
	}
	if c.App.Env == "prod" && c.JWT.Issuer == "" {
		return fmt.Errorf("config: jwt.issuer is required in prod")
	}
	return nil
}

// PostgresDSN devuelve el DSN listo para abrir la conexión, descifrándolo si
// vino en el formato de secretbox.
func (c *Config) PostgresDSN() (string, error) {
	dsn := c.Storage.Postgres.DSN
	if !secretbox.IsEncrypted(dsn) {
		return dsn, nil
	}
	plain, err := secretbox.Decrypt(dsn)
	if err != nil {
		return "", fmt.Errorf("config: postgres.dsn: %w", err)
	}
	return plain, nil
}
