package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"soundwork/pkg/ledger"
)

const uniqueViolation = "23505"

type PostgresJournal struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{
		pool:   pool,
		tracer: otel.Tracer("soundwork/journal"),
	}
}

func (p *PostgresJournal) Append(ctx context.Context, ev ledger.Event) error {
	ctx, span := p.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.Int64("event.seq", ev.Seq),
			attribute.String("event.type", string(ev.Type)),
			attribute.Int64("asset.id", ev.AssetID),
		),
	)
	defer span.End()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var assetID *int64
	if ev.AssetID != 0 {
		assetID = &ev.AssetID
	}

	query := `INSERT INTO ledger_events (seq, id, event_type, asset_id, caller, payload, occurred_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = p.pool.Exec(ctx, query, ev.Seq, ev.ID, string(ev.Type), assetID, ev.Caller.String(), payload, ev.OccurredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return fmt.Errorf("%w: seq %d", ErrSequenceConflict, ev.Seq)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert event")
		return fmt.Errorf("insert event %d: %w", ev.Seq, err)
	}
	return nil
}

func (p *PostgresJournal) Load(ctx context.Context) ([]ledger.Event, error) {
	ctx, span := p.tracer.Start(ctx, "journal.load")
	defer span.End()

	rows, err := p.pool.Query(ctx, "SELECT payload FROM ledger_events ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]ledger.Event, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev ledger.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("event.count", len(events)))
	return events, nil
}
