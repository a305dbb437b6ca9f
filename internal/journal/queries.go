package journal

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const insertExchange = `-- name: InsertExchange :exec
INSERT INTO exchanges (
    exchange_id, experiment_id, dialog_id, turn_id, system_name,
    utterance, reply, outcome, error,
    started_at, published_at, ready_at, finished_at, wait_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (exchange_id) DO NOTHING
`

type InsertExchangeParams struct {
	ExchangeID   pgtype.UUID
	ExperimentID string
	DialogID     string
	TurnID       string
	SystemName   string
	Utterance    string
	Reply        string
	Outcome      string
	Error        string
	StartedAt    pgtype.Timestamptz
	PublishedAt  pgtype.Timestamptz
	ReadyAt      pgtype.Timestamptz
	FinishedAt   pgtype.Timestamptz
	WaitMs       int64
}

func (q *Queries) InsertExchange(ctx context.Context, arg InsertExchangeParams) error {
	_, err := q.db.Exec(ctx, insertExchange,
		arg.ExchangeID,
		arg.ExperimentID,
		arg.DialogID,
		arg.TurnID,
		arg.SystemName,
		arg.Utterance,
		arg.Reply,
		arg.Outcome,
		arg.Error,
		arg.StartedAt,
		arg.PublishedAt,
		arg.ReadyAt,
		arg.FinishedAt,
		arg.WaitMs,
	)
	return err
}
