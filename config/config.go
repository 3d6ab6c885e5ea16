// Package config loads database connection settings.
//
// Settings are layered, lowest precedence first: built-in defaults, an
// optional YAML file, then DB_ environment variables.
//
//	# database.yaml
//	connection: pgsql
//	host: db.internal
//	database: shop
//	username: shop
//	options:
//	  sslmode: require
//
//	DB_PASSWORD=secret DB_OPTIONS_SSLMODE=disable ./app
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aguaragazu/mate-framework/dialect"
	dsql "github.com/aguaragazu/mate-framework/dialect/sql"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "DB_"

// Database holds the settings of one connection.
type Database struct {
	// Connection is the protocol: mysql, mariadb, pgsql, postgres,
	// postgresql, sqlite or sqlite3.
	Connection string            `koanf:"connection"`
	Host       string            `koanf:"host"`
	Port       int               `koanf:"port"`
	Database   string            `koanf:"database"`
	Username   string            `koanf:"username"`
	Password   string            `koanf:"password"`
	Charset    string            `koanf:"charset"`
	Options    map[string]string `koanf:"options"`

	// Debug logs every statement.
	Debug bool `koanf:"debug"`
	// SlowThreshold enables statement statistics and logs the statements
	// slower than it. Zero disables both.
	SlowThreshold time.Duration `koanf:"slow_threshold"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Reconnect       bool          `koanf:"reconnect"`
}

func defaults() map[string]any {
	return map[string]any{
		"connection":        "mysql",
		"host":              "127.0.0.1",
		"max_open_conns":    dsql.DefaultMaxOpenConns,
		"max_idle_conns":    dsql.DefaultMaxIdleConns,
		"conn_max_lifetime": dsql.DefaultConnMaxLifetime.String(),
		"slow_threshold":    "0s",
	}
}

// Load reads the settings. path may be empty; a path that does not exist
// is an error.
func Load(path string) (*Database, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	// DB_MAX_OPEN_CONNS -> max_open_conns, DB_OPTIONS_SSLMODE -> options.sslmode
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if opt, ok := strings.CutPrefix(key, "options_"); ok {
			return "options." + opt
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Database
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings describe a connection.
func (c *Database) Validate() error {
	name, err := dsql.ProtocolDialect(c.Connection)
	if err != nil {
		return err
	}
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("config: database is required"))
	}
	if name != dialect.SQLite && c.Host == "" {
		errs = append(errs, errors.New("config: host is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: invalid port %d", c.Port))
	}
	if c.MaxIdleConns > c.MaxOpenConns && c.MaxOpenConns > 0 {
		errs = append(errs, fmt.Errorf("config: max_idle_conns %d exceeds max_open_conns %d", c.MaxIdleConns, c.MaxOpenConns))
	}
	return errors.Join(errs...)
}

// Options returns the connection options of the settings.
func (c *Database) Options() dsql.ConnectOptions {
	return dsql.ConnectOptions{
		Protocol:        c.Connection,
		Host:            c.Host,
		Port:            c.Port,
		Database:        c.Database,
		Username:        c.Username,
		Password:        c.Password,
		Charset:         c.Charset,
		Params:          c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		Reconnect:       c.Reconnect,
	}
}

// Open connects with the settings. The driver is wrapped for statement
// statistics when SlowThreshold is set, and for statement logging when
// Debug is.
func Open(ctx context.Context, c *Database, logger *slog.Logger) (dialect.Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := dsql.Connect(ctx, c.Options(), dsql.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	var drv dialect.Driver = base
	if c.SlowThreshold > 0 {
		drv = dsql.NewStatsDriver(drv,
			dsql.WithSlowThreshold(c.SlowThreshold),
			dsql.WithSlowQueryHook(func(_ context.Context, query string, args []any, d time.Duration) {
				logger.Warn("slow query detected", "duration", d, "query", query, "args", args)
			}),
		)
	}
	if c.Debug {
		drv = dsql.NewDebugDriver(drv, dsql.DebugWithLog(func(ctx context.Context, v ...any) {
			logger.DebugContext(ctx, fmt.Sprint(v...))
		}))
	}
	return drv, nil
}
