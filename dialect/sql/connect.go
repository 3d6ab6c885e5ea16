package sql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// ConnectOptions describes how to reach a database.
type ConnectOptions struct {
	// Protocol is one of mysql, mariadb, pgsql, postgres, postgresql,
	// sqlite or sqlite3.
	Protocol string
	Host     string
	Port     int
	// Database is the schema name, or the file path for sqlite.
	Database string
	Username string
	Password string
	Charset  string
	// Params are appended to the DSN as driver parameters.
	Params map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Reconnect installs a reconnector that reopens the same DSN once a
	// statement fails on a lost connection.
	Reconnect bool
}

// Default pool settings, as used for MariaDB services.
const (
	DefaultMaxOpenConns    = 50
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = time.Minute
)

// ProtocolDialect maps a connection protocol to its dialect name.
func ProtocolDialect(protocol string) (string, error) {
	switch strings.ToLower(protocol) {
	case "mysql", "mariadb":
		return dialect.MySQL, nil
	case "pgsql", "postgres", "postgresql":
		return dialect.Postgres, nil
	case "sqlite", "sqlite3":
		return dialect.SQLite, nil
	default:
		return "", &mate.ConnectionError{Kind: mate.InvalidProtocol, Protocol: protocol}
	}
}

// driverName returns the database/sql driver registered for a dialect.
func driverName(name string) string {
	switch {
	case strings.HasPrefix(name, dialect.MySQL):
		return "mysql"
	case strings.HasPrefix(name, dialect.Postgres):
		return "postgres"
	case strings.HasPrefix(name, dialect.SQLite):
		return "sqlite"
	default:
		return name
	}
}

// DSN builds the data source name for opts and returns it with its dialect.
func DSN(opts ConnectOptions) (string, string, error) {
	name, err := ProtocolDialect(opts.Protocol)
	if err != nil {
		return "", "", err
	}
	switch name {
	case dialect.MySQL:
		cfg := mysql.NewConfig()
		cfg.User = opts.Username
		cfg.Passwd = opts.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(orDefault(opts.Host, "localhost"), strconv.Itoa(orDefaultInt(opts.Port, 3306)))
		cfg.DBName = opts.Database
		cfg.Params = map[string]string{"charset": orDefault(opts.Charset, "utf8mb4")}
		for k, v := range opts.Params {
			cfg.Params[k] = v
		}
		return name, cfg.FormatDSN(), nil
	case dialect.Postgres:
		pairs := map[string]string{
			"host":     orDefault(opts.Host, "localhost"),
			"port":     strconv.Itoa(orDefaultInt(opts.Port, 5432)),
			"dbname":   opts.Database,
			"user":     opts.Username,
			"password": opts.Password,
			"sslmode":  "disable",
		}
		if opts.Charset != "" {
			pairs["client_encoding"] = opts.Charset
		}
		for k, v := range opts.Params {
			pairs[k] = v
		}
		keys := make([]string, 0, len(pairs))
		for k, v := range pairs {
			if v != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + pqQuote(pairs[k])
		}
		return name, strings.Join(parts, " "), nil
	default:
		if opts.Database == "" {
			return "", "", &mate.ConnectionError{Kind: mate.ConnectionFailure, Protocol: opts.Protocol, Err: fmt.Errorf("missing database path")}
		}
		if len(opts.Params) == 0 {
			return name, opts.Database, nil
		}
		q := url.Values{}
		for k, v := range opts.Params {
			q.Set(k, v)
		}
		return name, "file:" + opts.Database + "?" + q.Encode(), nil
	}
}

// Connect opens and pings a connection described by opts.
func Connect(ctx context.Context, opts ConnectOptions, driverOpts ...Option) (*Driver, error) {
	name, dsn, err := DSN(opts)
	if err != nil {
		return nil, err
	}
	db, err := openPool(ctx, name, dsn, opts)
	if err != nil {
		return nil, err
	}
	driverOpts = append([]Option{WithDatabaseName(opts.Database)}, driverOpts...)
	if opts.Reconnect {
		driverOpts = append(driverOpts, WithReconnector(func(ctx context.Context) (*sql.DB, error) {
			return openPool(ctx, name, dsn, opts)
		}))
	}
	drv := NewDriver(name, db, driverOpts...)
	drv.logger.Debug("database connection established", "dialect", name, "database", opts.Database)
	return drv, nil
}

func openPool(ctx context.Context, name, dsn string, opts ConnectOptions) (*sql.DB, error) {
	db, err := sql.Open(driverName(name), dsn)
	if err != nil {
		return nil, &mate.ConnectionError{Kind: mate.InvalidDriver, Protocol: opts.Protocol, Err: err}
	}
	switch {
	case name == dialect.SQLite && (opts.Database == ":memory:" || strings.Contains(opts.Database, "mode=memory")):
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(orDefaultInt(opts.MaxOpenConns, DefaultMaxOpenConns))
		db.SetMaxIdleConns(orDefaultInt(opts.MaxIdleConns, DefaultMaxIdleConns))
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &mate.ConnectionError{Kind: mate.ConnectionFailure, Protocol: opts.Protocol, Err: err}
	}
	return db, nil
}

// pqQuote quotes a value of a lib/pq key/value connection string.
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
