package inbox

import (
	"context"
	"fmt"
	"log"
	"time"

	model "voicemail-bridge/internal/model/inbox"
	"voicemail-bridge/internal/store"
)

// Item is one raw update from the message source. Text may be empty for
// updates that carry no readable message; those still advance the cursor.
type Item struct {
	ExternalID int64
	ChannelID  int64
	Sender     string
	Timestamp  time.Time
	Text       string
}

// Source pages through updates newer than afterID. Implementations may fail
// transiently; the ingestion loop treats any error as batch failure.
type Source interface {
	Fetch(ctx context.Context, afterID int64, limit int) ([]Item, error)
}

// Service ingests messages from a Source into the mailbox exactly once.
//
// Delivery contract: at-least-once fetch, at-most-once storage. The cursor
// only advances after a whole batch lands, so a mid-batch failure causes the
// next sync to re-fetch overlapping updates, which the unique external id
// then deduplicates.
type Service struct {
	source    Source
	store     *store.Store
	pollLimit int
}

// NewService builds the ingestion service. source may be nil when the
// messenger credentials are not configured; Sync is then a no-op.
func NewService(source Source, st *store.Store, pollLimit int) *Service {
	return &Service{source: source, store: st, pollLimit: pollLimit}
}

// Sync runs one full ingestion pass and returns how many new messages were
// stored. The cursor is persisted only after every page fetched cleanly.
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.source == nil {
		log.Println("[inbox] message source not configured, skipping sync")
		return 0, nil
	}

	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return 0, err
	}

	maxID := cursor
	inserted := 0

	for {
		items, err := s.source.Fetch(ctx, maxID, s.pollLimit)
		if err != nil {
			return inserted, fmt.Errorf("inbox: fetch updates: %w", err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if item.ExternalID <= 0 {
				continue
			}
			if item.ExternalID > maxID {
				maxID = item.ExternalID
			}
			if item.Text == "" || item.ChannelID == 0 {
				continue
			}

			ok, err := s.store.UpsertMessage(ctx, model.Message{
				ExternalID: item.ExternalID,
				ChannelID:  item.ChannelID,
				Sender:     item.Sender,
				Timestamp:  item.Timestamp,
				Text:       item.Text,
			})
			if err != nil {
				return inserted, err
			}
			if ok {
				inserted++
			}
		}
	}

	if maxID > cursor {
		if err := s.store.AdvanceCursor(ctx, maxID); err != nil {
			return inserted, err
		}
	}

	if inserted > 0 {
		log.Printf("[inbox] sync stored %d new messages, cursor=%d", inserted, maxID)
	}
	return inserted, nil
}
