// Package store implements the relay's external collaborators: relationship lookup,
// last-active tracking and the direct message store.
//
// The backend is picked from the DSN scheme:
//
//	postgres://, postgresql://  pgx pool over the web app's database
//	redis://, rediss://         last-active tracking only
//	mem://                      in-process maps (development, tests)
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrMissingID         = errors.New("missing id")
	ErrUnsupportedScheme = errors.New("unsupported DSN scheme")
)

// DSN is a connection string whose scheme selects a backend.
type DSN string

// IsPostgres reports a postgres:// or postgresql:// URI.
func (d DSN) IsPostgres() bool {
	return strings.HasPrefix(string(d), "postgres://") || strings.HasPrefix(string(d), "postgresql://")
}

// IsRedis reports a redis:// or rediss:// URI.
func (d DSN) IsRedis() bool {
	return strings.HasPrefix(string(d), "redis://") || strings.HasPrefix(string(d), "rediss://")
}

// IsMemory reports a mem:// or memory:// URI.
func (d DSN) IsMemory() bool {
	return strings.HasPrefix(string(d), "mem://") || strings.HasPrefix(string(d), "memory://")
}

// Open connects the collaborators described by databaseURI and activityURI. An empty
// activityURI keeps last-active tracking on the database backend. The returned close
// function releases every opened connection.
func Open(ctx context.Context, databaseURI, activityURI string, logger *zap.Logger) (lovewise.Collaborators, func(), error) {
	var (
		collab  lovewise.Collaborators
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db := DSN(databaseURI)
	switch {
	case db.IsPostgres():
		pg, err := NewPostgres(ctx, databaseURI)
		if err != nil {
			return collab, nil, err
		}
		closers = append(closers, pg.Close)
		collab = lovewise.Collaborators{Relationships: pg, Activity: pg, Messages: pg}
		logger.Info("using postgres collaborators")
	case db.IsMemory():
		mem := NewMemory()
		collab = lovewise.Collaborators{Relationships: mem, Activity: mem, Messages: mem}
		logger.Warn("using in-memory collaborators, data is lost on restart")
	default:
		return collab, nil, fmt.Errorf("database %q: %w", databaseURI, ErrUnsupportedScheme)
	}

	activity := DSN(activityURI)
	switch {
	case activityURI == "":
	case activity.IsRedis():
		rdb, err := NewRedisActivity(ctx, activityURI)
		if err != nil {
			closeAll()
			return lovewise.Collaborators{}, nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		collab.Activity = rdb
		logger.Info("using redis last-active tracking")
	case activity.IsMemory():
		collab.Activity = NewMemory()
	default:
		closeAll()
		return lovewise.Collaborators{}, nil, fmt.Errorf("activity %q: %w", activityURI, ErrUnsupportedScheme)
	}

	return collab, closeAll, nil
}
