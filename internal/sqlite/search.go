package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/hnews/internal/hn"
)

// Variants that have a title worth searching.
var searchable = []hn.ItemType{hn.TypeStory, hn.TypeJob, hn.TypePoll}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches the query against titles and text, newest first.
func (r Repo) Search(ctx context.Context, query string, offset, limit int) ([]hn.Item, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"

	// Each table can contribute at most offset+limit rows to the merged page
	var found []hn.Item
	for _, typ := range searchable {
		q, args, err := sq.Select("*").From(tables[typ]).
			Where(sq.Or{
				sq.Expr(`title LIKE ? ESCAPE '\'`, pattern),
				sq.Expr(`text LIKE ? ESCAPE '\'`, pattern),
			}).
			OrderBy("id DESC").
			Limit(uint64(offset + limit)).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("error constructing sql: %s", err)
		}

		var items []hn.Item
		if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
			return nil, fmt.Errorf("error searching %s: %s", tables[typ], err)
		}
		found = append(found, items...)
	}

	slices.SortFunc(found, func(a, b hn.Item) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if offset >= len(found) {
		return []hn.Item{}, nil
	}
	found = found[offset:]
	if len(found) > limit {
		found = found[:limit]
	}

	return found, nil
}
