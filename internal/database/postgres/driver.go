// Package postgres dials PostgreSQL sessions through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joacominatel/minaconn/internal/database"
	"github.com/joacominatel/minaconn/internal/uri"
)

// Option keys understood by the Dialer.
const (
	OptionMaxConns       = "max_conns"
	OptionMinConns       = "min_conns"
	OptionConnectTimeout = "connect_timeout"
)

const (
	defaultMaxConns = 5
	defaultMinConns = 1
)

// Dialer implements database.Dialer for PostgreSQL.
type Dialer struct{}

// NewProvider returns a connection registry that dials PostgreSQL.
func NewProvider() *database.Registry {
	return database.NewRegistry(Dialer{})
}

// Dial establishes a connection pool and pings it.
func (Dialer) Dial(ctx context.Context, raw string, options database.Options) (database.Session, error) {
	desc, err := uri.ParseDriver(raw)
	if err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(uri.Format(desc))
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	if n, ok, err := intOption(options, OptionMaxConns); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxConns = int32(n)
	}
	if n, ok, err := intOption(options, OptionMinConns); err != nil {
		return nil, err
	} else if ok {
		cfg.MinConns = int32(n)
	}
	if n, ok, err := intOption(options, OptionConnectTimeout); err != nil {
		return nil, err
	} else if ok {
		cfg.ConnConfig.ConnectTimeout = time.Duration(n) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Session{pool: pool}, nil
}

func intOption(options database.Options, key string) (int, bool, error) {
	v, ok := options[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false, fmt.Errorf("option %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, false, fmt.Errorf("option %s: unsupported type %T", key, v)
	}
}

// ServerInfo describes the server a session is connected to.
type ServerInfo struct {
	Version  string
	Database string
	User     string
}

// Session wraps the pool opened by Dialer.
type Session struct {
	pool *pgxpool.Pool
}

// Ping checks if the connection is alive.
func (s *Session) Ping(ctx context.Context) error {
	if s.pool == nil {
		return database.ErrNotConnected
	}
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Session) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ServerInfo reports the server version and the session's database and role.
func (s *Session) ServerInfo(ctx context.Context) (ServerInfo, error) {
	if s.pool == nil {
		return ServerInfo{}, database.ErrNotConnected
	}
	var info ServerInfo
	if err := s.pool.QueryRow(ctx, queryServerInfo).Scan(&info.Version, &info.Database, &info.User); err != nil {
		return ServerInfo{}, fmt.Errorf("server info: %w", err)
	}
	return info, nil
}

// SessionOf returns the PostgreSQL session of an open connection.
func SessionOf(c database.Conn) (*Session, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.Session().(*Session)
	return s, ok
}
