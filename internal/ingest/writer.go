package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jdholdren/hnews/internal/hn"
)

// Writer validates raw items and creates them if they're new.
type Writer struct {
	repo hn.ItemRepo
}

func NewWriter(repo hn.ItemRepo) Writer {
	return Writer{repo: repo}
}

// Write classifies the item by its type tag, validates every field against
// that variant, then creates the row if the id isn't there yet.
//
// Nothing is returned as an error: an existing row is AlreadyExists, anything
// else that goes wrong is a rejection with its reason. The parsed item is
// returned when parsing succeeded.
func (w Writer) Write(ctx context.Context, raw []byte) (hn.Item, hn.Outcome) {
	item, err := hn.ParseItem(raw)
	if err != nil {
		out := hn.Rejected(err)
		slog.WarnContext(ctx, "rejected item",
			"item_id", rawID(raw),
			"outcome", out.Status,
			"reason", out.Reason,
			"error", err,
		)
		return hn.Item{}, out
	}

	err = w.repo.InsertItem(ctx, item)
	switch {
	case errors.Is(err, hn.ErrConflict):
		slog.DebugContext(ctx, "item already exists", "item_id", item.ID, "type", item.Type, "outcome", hn.OutcomeAlreadyExists)
		return item, hn.AlreadyExists()
	case err != nil:
		out := hn.Rejected(err)
		slog.ErrorContext(ctx, "error writing item",
			"item_id", item.ID,
			"type", item.Type,
			"outcome", out.Status,
			"reason", out.Reason,
			"error", err,
		)
		return item, out
	}

	slog.InfoContext(ctx, "created item", "item_id", item.ID, "type", item.Type, "outcome", hn.OutcomeCreated)
	return item, hn.Created()
}

// Best effort id of an item that didn't parse, zero when there isn't a usable one.
func rawID(raw []byte) int64 {
	var peek struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return 0
	}
	return peek.ID
}
