package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jdholdren/hnews/internal/hn"
)

// Checker decides whether the item tables already hold data.
type Checker struct {
	repo hn.ItemRepo
}

func NewChecker(repo hn.ItemRepo) Checker {
	return Checker{repo: repo}
}

// IsPopulated is true as soon as any one of the five variant tables has a row.
func (c Checker) IsPopulated(ctx context.Context) (bool, error) {
	states, err := c.repo.Populated(ctx)
	if err != nil {
		return false, fmt.Errorf("error checking tables: %w", err)
	}

	populated := false
	for _, typ := range hn.ItemTypes {
		if states[typ] {
			populated = true
			break
		}
	}

	slog.InfoContext(ctx, "checked tables for data", "populated", populated)

	return populated, nil
}
