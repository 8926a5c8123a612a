package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/hnews/internal/hn"
)

// InsertItem creates the item's row in its variant table, unless the id is already there.
//
// Everything happens in one transaction: the existence check, the author stub,
// resolving a comment's parent, and the insert itself. A row that already
// exists, or that a concurrent writer inserted first, is hn.ErrConflict and is
// never modified.
func (r Repo) InsertItem(ctx context.Context, item hn.Item) error {
	t, err := table(item.Type)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %s", err)
	}
	defer tx.Rollback()

	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?);`, t)
	if err := tx.GetContext(ctx, &exists, q, item.ID); err != nil {
		return fmt.Errorf("error checking for %s %d: %w", item.Type, item.ID, err)
	}
	if exists {
		return fmt.Errorf("%s %d: %w", item.Type, item.ID, hn.ErrConflict)
	}

	if item.Author != nil && *item.Author != "" {
		if err := ensureUser(ctx, tx, *item.Author); err != nil {
			return err
		}
	}
	if item.Type == hn.TypeComment && item.ParentID != nil {
		parentType, err := resolveParent(ctx, tx, *item.ParentID)
		if err != nil {
			return err
		}
		item.ParentType = parentType
	}

	query, args, err := sq.Insert(t).SetMap(columns(item)).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %d: %w", item.Type, item.ID, hn.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("error inserting %s %d: %w", item.Type, item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %d: %w", item.Type, item.ID, hn.ErrConflict)
		}
		return fmt.Errorf("error committing %s %d: %w", item.Type, item.ID, err)
	}

	return nil
}

// The columns each variant table has, with the item's values.
func columns(item hn.Item) map[string]any {
	cols := map[string]any{
		"id":      item.ID,
		"type":    string(item.Type),
		"author":  item.Author,
		"time":    item.Time,
		"deleted": item.Deleted,
		"dead":    item.Dead,
		"kids":    item.Kids,
		"text":    item.Text,
	}

	switch item.Type {
	case hn.TypeStory:
		cols["descendants"] = item.Descendants
		cols["score"] = item.Score
		cols["title"] = item.Title
		cols["url"] = item.URL
	case hn.TypeJob:
		cols["score"] = item.Score
		cols["title"] = item.Title
		cols["url"] = item.URL
	case hn.TypePoll:
		cols["descendants"] = item.Descendants
		cols["parts"] = item.Parts
		cols["score"] = item.Score
		cols["title"] = item.Title
	case hn.TypePollOpt:
		cols["parent_id"] = item.ParentID
		cols["score"] = item.Score
	case hn.TypeComment:
		cols["parent_id"] = item.ParentID
		var parentType *string
		if item.ParentType != nil {
			s := string(*item.ParentType)
			parentType = &s
		}
		cols["parent_type"] = parentType
	}

	return cols
}

// Comments hang off a story, a poll, or another comment.
var parentTypes = []hn.ItemType{hn.TypeStory, hn.TypeComment, hn.TypePoll}

// Finds which table the parent lives in. Parents that haven't been ingested resolve to nil.
func resolveParent(ctx context.Context, tx *sqlx.Tx, parentID int64) (*hn.ItemType, error) {
	for _, typ := range parentTypes {
		var exists bool
		q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?);`, tables[typ])
		if err := tx.GetContext(ctx, &exists, q, parentID); err != nil {
			return nil, fmt.Errorf("error resolving parent %d: %w", parentID, err)
		}
		if exists {
			return &typ, nil
		}
	}

	return nil, nil
}

// Populated checks each variant table for at least one row.
func (r Repo) Populated(ctx context.Context) (map[hn.ItemType]bool, error) {
	states := make(map[hn.ItemType]bool, len(tables))
	for _, typ := range hn.ItemTypes {
		var exists bool
		q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s LIMIT 1);`, tables[typ])
		if err := r.db.GetContext(ctx, &exists, q); err != nil {
			return nil, fmt.Errorf("error checking %s for rows: %w", tables[typ], err)
		}
		states[typ] = exists
	}

	slog.DebugContext(ctx, "checked tables for data", "states", states)

	return states, nil
}

func (r Repo) Item(ctx context.Context, id int64) (hn.Item, error) {
	for _, typ := range hn.ItemTypes {
		var item hn.Item
		q := fmt.Sprintf(`SELECT * FROM %s WHERE id = ?;`, tables[typ])
		err := r.db.GetContext(ctx, &item, q, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return hn.Item{}, fmt.Errorf("error fetching item: %s", err)
		}

		return item, nil
	}

	return hn.Item{}, hn.ErrNotFound
}

// Items pages through one variant, newest first.
func (r Repo) Items(ctx context.Context, typ hn.ItemType, offset, limit int) ([]hn.Item, error) {
	t, err := table(typ)
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Select("*").From(t).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	items := []hn.Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting %s: %s", t, err)
	}

	return items, nil
}

func (r Repo) CountItems(ctx context.Context, typ hn.ItemType) (int, error) {
	t, err := table(typ)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s;`, t)); err != nil {
		return 0, fmt.Errorf("error counting %s: %s", t, err)
	}

	return count, nil
}

// Children returns the comments and poll options pointing at parentID, oldest first.
func (r Repo) Children(ctx context.Context, parentID int64) ([]hn.Item, error) {
	children := []hn.Item{}
	for _, t := range []string{tables[hn.TypePollOpt], tables[hn.TypeComment]} {
		query, args, err := sq.Select("*").From(t).
			Where(sq.Eq{"parent_id": parentID}).
			OrderBy("id ASC").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("error constructing sql: %s", err)
		}

		var items []hn.Item
		if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
			return nil, fmt.Errorf("error selecting children from %s: %s", t, err)
		}
		children = append(children, items...)
	}

	return children, nil
}
