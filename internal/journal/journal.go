// Package journal records finished exchanges in Postgres.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewisedginton/agent_handoff/internal/config"
	"github.com/lewisedginton/agent_handoff/internal/handoff"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// Entry is one journalled exchange.
type Entry struct {
	Request handoff.Request
	Result  handoff.Result
	Err     error
}

// NewEntry builds an Entry from what Channel.Exchange returned.
func NewEntry(req handoff.Request, res *handoff.Result, err error) Entry {
	e := Entry{Request: req, Err: err}
	if res != nil {
		e.Result = *res
		e.Request.ID = res.ID
	}
	return e
}

// Journal stores exchange entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Ping(ctx context.Context) error
	Close()
}

// Noop discards entries. It is used when no database is configured.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error { return nil }
func (Noop) Ping(context.Context) error          { return nil }
func (Noop) Close()                              {}

// Postgres writes entries to the exchanges table.
type Postgres struct {
	pool         *pgxpool.Pool
	queries      *Queries
	logger       logger.Logger
	writeTimeout time.Duration
}

// Open returns Noop when the journal is disabled, otherwise a Postgres
// journal with its schema migrated.
func Open(ctx context.Context, cfg config.JournalConfig, log logger.Logger) (Journal, error) {
	if !cfg.Enabled() {
		log.Info("Exchange journal disabled")
		return Noop{}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse journal database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect journal database: %w", err)
	}

	mm := NewMigrationManager(pool, log)
	err = mm.RunMigrations()
	err = errors.Join(err, mm.Close())
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Exchange journal enabled", logger.IntField("max_connections", int(poolCfg.MaxConns)))
	return &Postgres{
		pool:         pool,
		queries:      NewQueries(pool),
		logger:       log,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// Record inserts e. Recording the same exchange twice keeps the first row.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	if err := p.queries.InsertExchange(ctx, insertParams(e)); err != nil {
		return fmt.Errorf("record exchange %s: %w", e.Request.ID, err)
	}
	p.logger.Debug("Exchange journalled", logger.ExchangeIDField(e.Request.ID.String()))
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func insertParams(e Entry) InsertExchangeParams {
	params := InsertExchangeParams{
		ExchangeID:   pgtype.UUID{Bytes: e.Request.ID.UUID, Valid: !e.Request.ID.IsZero()},
		ExperimentID: e.Request.Labels.ExperimentID,
		DialogID:     e.Request.Labels.DialogID,
		TurnID:       e.Request.Labels.TurnID,
		SystemName:   e.Request.Labels.SystemName,
		Utterance:    e.Request.Utterance,
		Reply:        e.Result.Reply,
		Outcome:      handoff.Outcome(e.Err),
		StartedAt:    timestamptz(e.Result.StartedAt),
		PublishedAt:  timestamptz(e.Result.PublishedAt),
		ReadyAt:      timestamptz(e.Result.ReadyAt),
		FinishedAt:   timestamptz(e.Result.FinishedAt),
		WaitMs:       e.Result.Wait().Milliseconds(),
	}
	if e.Err != nil {
		params.Error = e.Err.Error()
	}
	return params
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
