// Package hn holds the Hacker News domain: the item variants, the outcome of
// persisting one, and the surfaces the ingestion pipeline depends on.
package hn

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")

	// ErrUnknownType is returned when an item's type tag is missing or not one of the variants.
	ErrUnknownType = errors.New("unknown item type")
	// ErrSchemaMismatch is returned when an item carries a field its variant doesn't have.
	ErrSchemaMismatch = errors.New("item does not match its variant's schema")
)

// ItemType is the `type` discriminator HN puts on every item.
type ItemType string

const (
	TypeComment ItemType = "comment"
	TypeJob     ItemType = "job"
	TypePoll    ItemType = "poll"
	TypePollOpt ItemType = "pollopt"
	TypeStory   ItemType = "story"
)

// ItemTypes lists every variant, in the order the population check walks them.
var ItemTypes = []ItemType{TypeComment, TypeJob, TypePoll, TypePollOpt, TypeStory}

// Valid reports if t is one of the known variants.
func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

type (
	// Item is a single HN item of any variant.
	//
	// Columns a variant doesn't have are left at their zero value.
	Item struct {
		ID      int64    `db:"id"`
		Type    ItemType `db:"type"`
		Author  *string  `db:"author"`
		Time    *int64   `db:"time"`
		Deleted bool     `db:"deleted"`
		Dead    bool     `db:"dead"`
		Kids    *string  `db:"kids"` // JSON array text
		Text    string   `db:"text"`

		Title       string  `db:"title"`
		URL         string  `db:"url"`
		Score       *int64  `db:"score"`
		Descendants *int64  `db:"descendants"`
		Parts       *string `db:"parts"` // JSON array text

		ParentID   *int64    `db:"parent_id"`
		ParentType *ItemType `db:"parent_type"`

		CreatedAt time.Time `db:"created_at"`
	}

	// User is an HN account.
	//
	// Rows start as a stub holding only the ID and get their profile filled in
	// once, which is marked by FetchedAt.
	User struct {
		ID        string     `db:"id"`
		Created   *int64     `db:"created"`
		Karma     *int64     `db:"karma"`
		About     string     `db:"about"`
		Submitted string     `db:"submitted"` // JSON array text
		Delay     *int64     `db:"delay"`
		FetchedAt *time.Time `db:"fetched_at"`
		CreatedAt time.Time  `db:"created_at"`
	}

	// Profile is the set of fields fetched from the user endpoint.
	Profile struct {
		ID        string  `json:"id"`
		Created   int64   `json:"created"`
		Karma     int64   `json:"karma"`
		About     string  `json:"about"`
		Delay     *int64  `json:"delay"`
		Submitted []int64 `json:"submitted"`
	}
)

// ItemRepo is the persistence boundary for items.
type ItemRepo interface {
	// InsertItem creates the row for the item if its variant table doesn't have the id yet.
	//
	// Returns ErrConflict when the row already exists.
	InsertItem(ctx context.Context, item Item) error
	// Populated reports, per variant table, whether it holds at least one row.
	Populated(ctx context.Context) (map[ItemType]bool, error)
}

// UserRepo is the persistence boundary for users.
type UserRepo interface {
	UsersWithoutProfile(ctx context.Context, ids []string) ([]string, error)
	UpdateProfile(ctx context.Context, p Profile) error
}

// Repository is everything the read side needs.
type Repository interface {
	ItemRepo
	UserRepo

	Item(ctx context.Context, id int64) (Item, error)
	Items(ctx context.Context, typ ItemType, offset, limit int) ([]Item, error)
	CountItems(ctx context.Context, typ ItemType) (int, error)
	Children(ctx context.Context, parentID int64) ([]Item, error)
	Search(ctx context.Context, query string, offset, limit int) ([]Item, error)
	User(ctx context.Context, id string) (User, error)
}
