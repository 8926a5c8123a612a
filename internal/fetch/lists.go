package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Category is one of the list endpoints that seed ingestion.
type Category string

const (
	CategoryTop  Category = "topstories"
	CategoryAsk  Category = "askstories"
	CategoryShow Category = "showstories"
	CategoryJob  Category = "jobstories"
)

// Categories is the configured endpoint order. Results from FetchLists line up with it.
var Categories = []Category{CategoryTop, CategoryAsk, CategoryShow, CategoryJob}

// IDList is the ids one category endpoint returned, in the order it returned them.
type IDList struct {
	Category Category
	IDs      []int64
}

func (c *Client) listURL(cat Category) string {
	return fmt.Sprintf("%s/%s.json", c.baseURL, cat)
}

// FetchLists queries every category endpoint at once and waits for all of them.
//
// The result has one entry per category in Categories order. A category that
// failed has no ids and doesn't affect the others.
func (c *Client) FetchLists(ctx context.Context) []IDList {
	lists := make([]IDList, len(Categories))

	var g errgroup.Group
	for i, cat := range Categories {
		lists[i].Category = cat
		g.Go(func() error {
			lists[i].IDs = c.ids(ctx, c.listURL(cat))
			return nil
		})
	}
	g.Wait()

	return lists
}

func (c *Client) ids(ctx context.Context, url string) []int64 {
	body, ok := c.Fetch(ctx, url)
	if !ok {
		return nil
	}

	var ids []int64
	if err := json.Unmarshal(body, &ids); err != nil {
		slog.WarnContext(ctx, "fetch failed", "url", url, "kind", KindDecode, "error", err)
		return nil
	}

	return ids
}

// MaxItem returns the newest item id.
func (c *Client) MaxItem(ctx context.Context) (int64, bool) {
	url := c.baseURL + "/maxitem.json"
	body, ok := c.Fetch(ctx, url)
	if !ok {
		return 0, false
	}

	var id int64
	if err := json.Unmarshal(body, &id); err != nil || id <= 0 {
		slog.WarnContext(ctx, "fetch failed", "url", url, "kind", KindDecode, "error", err)
		return 0, false
	}

	return id, true
}
