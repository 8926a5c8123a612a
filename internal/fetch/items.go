package fetch

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/hnews/internal/hn"
)

// FetchItems fetches the item body for every id concurrently.
//
// The result is positional: slot i holds the body for ids[i], or nil when that
// fetch failed. One failure never affects another slot.
func (c *Client) FetchItems(ctx context.Context, ids []int64) []json.RawMessage {
	items := make([]json.RawMessage, len(ids))

	var g errgroup.Group
	if c.maxConcurrent > 0 {
		g.SetLimit(c.maxConcurrent)
	}
	for i, id := range ids {
		g.Go(func() error {
			if body, ok := c.Fetch(ctx, c.itemURL(id)); ok {
				items[i] = body
			}
			return nil
		})
	}
	g.Wait()

	return items
}

// FetchProfiles fetches the user profile for every id concurrently.
//
// Profiles that couldn't be fetched or decoded are left out.
func (c *Client) FetchProfiles(ctx context.Context, ids []string) []hn.Profile {
	profiles := make([]*hn.Profile, len(ids))

	var g errgroup.Group
	if c.maxConcurrent > 0 {
		g.SetLimit(c.maxConcurrent)
	}
	for i, id := range ids {
		g.Go(func() error {
			url := c.userURL(id)
			body, ok := c.Fetch(ctx, url)
			if !ok {
				return nil
			}

			var p hn.Profile
			if err := json.Unmarshal(body, &p); err != nil || p.ID == "" {
				slog.WarnContext(ctx, "fetch failed", "url", url, "kind", KindDecode, "error", err)
				return nil
			}
			profiles[i] = &p

			return nil
		})
	}
	g.Wait()

	ret := make([]hn.Profile, 0, len(ids))
	for _, p := range profiles {
		if p != nil {
			ret = append(ret, *p)
		}
	}

	return ret
}
