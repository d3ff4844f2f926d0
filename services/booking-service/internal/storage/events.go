package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

type eventSink struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (e eventSink) Append(ctx context.Context, evt outbox.Event) error {
	return e.outbox.Insert(ctx, e.tx, evt)
}

type providerEventRepo struct {
	tx pgx.Tx
}

func (r providerEventRepo) Record(ctx context.Context, provider, eventID, eventType string, payload []byte) error {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, provider, eventID, eventType, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicateProviderEvent
	}
	return nil
}
