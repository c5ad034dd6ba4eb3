package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joacominatel/minaconn/internal/config"
	"github.com/joacominatel/minaconn/internal/connection"
	"github.com/joacominatel/minaconn/internal/database"
	"github.com/joacominatel/minaconn/internal/metrics"
	"github.com/joacominatel/minaconn/internal/uri"
)

// Status summarizes the service's connection for display.
type Status struct {
	Profile  string
	Display  string
	State    database.ReadyState
	URI      string
	Database string
}

// Service coordinates connection profiles and the handle that owns the
// active connection.
type Service struct {
	provider database.Provider
	logger   zerolog.Logger
	metrics  metrics.Collector

	handle  *connection.Handle
	profile config.Connection
}

// NewService creates a new application service.
func NewService(provider database.Provider, logger zerolog.Logger, collector metrics.Collector) *Service {
	if collector == nil {
		collector = metrics.Noop()
	}
	return &Service{provider: provider, logger: logger, metrics: collector}
}

// Connect opens a connection for the given profile. Any connection held
// for a previous profile is closed first.
func (s *Service) Connect(ctx context.Context, profile config.Connection) error {
	password, err := config.ResolvePassword(profile)
	if err != nil {
		return &ErrConfig{Cause: err}
	}
	profile.Password = password

	dsn, err := profile.DSN()
	if err != nil {
		return &ErrConfig{Cause: err}
	}

	if s.handle != nil && s.handle.URI() != dsn {
		if err := s.Disconnect(ctx); err != nil {
			return err
		}
	}
	if s.handle == nil {
		s.handle = connection.FromURI(s.provider, dsn, database.Options(profile.Options),
			connection.WithLogger(s.logger.With().Str("profile", profile.Name).Logger()),
			connection.WithMetrics(s.metrics),
		)
	}
	s.profile = profile

	if _, err := s.handle.Connect(ctx); err != nil {
		return &ErrConnection{Profile: profile.Name, Cause: err}
	}
	return nil
}

// ConnectDSN opens a connection for an ad-hoc connection string.
func (s *Service) ConnectDSN(ctx context.Context, dsn string) error {
	profile, err := config.ParseDSN(dsn)
	if err != nil {
		return &ErrConfig{Cause: err}
	}
	return s.Connect(ctx, profile)
}

// Disconnect closes the active connection, if any.
func (s *Service) Disconnect(ctx context.Context) error {
	if s.handle == nil {
		return nil
	}
	if _, err := s.handle.Disconnect(ctx); err != nil {
		return &ErrDisconnection{Cause: err}
	}
	s.handle = nil
	return nil
}

// Ping checks the active connection.
func (s *Service) Ping(ctx context.Context) error {
	if s.handle == nil {
		return database.ErrNotConnected
	}
	conn := s.handle.Connection()
	if conn == nil {
		return database.ErrNotConnected
	}
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Connection returns the active connection, or nil.
func (s *Service) Connection() database.Conn {
	if s.handle == nil {
		return nil
	}
	return s.handle.Connection()
}

// Status reports the current connection state.
func (s *Service) Status() Status {
	st := Status{State: database.Uninitialized}
	if s.handle == nil {
		return st
	}

	st.Profile = s.profile.Name
	st.Display = s.profile.DisplayString()
	st.Database = s.profile.Database
	if target, ok := s.handle.ConnectionURI(); ok {
		st.URI = uri.Redact(target)
	}
	if conn := s.handle.Connection(); conn != nil {
		st.State = conn.ReadyState()
	} else {
		st.State = database.Disconnected
	}
	return st
}

// IsConnectionError reports whether err came from opening a connection.
func IsConnectionError(err error) bool {
	var connErr *ErrConnection
	return errors.As(err, &connErr)
}
