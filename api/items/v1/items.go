// Package v1 holds the request and response shapes of the read API.
package v1

import (
	"net/http"
	"strings"
	"time"

	goaway "github.com/TwiN/go-away"

	hnerrs "github.com/jdholdren/hnews/internal/errors"
	"github.com/jdholdren/hnews/internal/hn"
)

// MaxQueryLength is the longest search query accepted.
const MaxQueryLength = 200

type (
	Item struct {
		ID      int64     `json:"id"`
		Type    string    `json:"type"`
		By      string    `json:"by,omitempty"`
		Time    *int64    `json:"time,omitempty"`
		Deleted bool      `json:"deleted,omitempty"`
		Dead    bool      `json:"dead,omitempty"`
		Kids    []int64   `json:"kids,omitempty"`
		Title   string    `json:"title,omitempty"`
		URL     string    `json:"url,omitempty"`
		Score   *int64    `json:"score,omitempty"`
		Parts   []int64   `json:"parts,omitempty"`
		Parent  *int64    `json:"parent,omitempty"`
		Created time.Time `json:"created_at"`

		// Descendant count for stories and polls
		Descendants *int64 `json:"descendants,omitempty"`
		// Kind of item the parent is, when it's been ingested
		ParentType string `json:"parent_type,omitempty"`

		// Text with all markup removed
		Text string `json:"text,omitempty"`
		// Text with markup limited to a safe subset
		TextHTML string `json:"text_html,omitempty"`
	}

	Pagination struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
		Total  int `json:"total,omitempty"` // Optional total count
	}

	ItemList struct {
		Items      []Item      `json:"items"`
		Pagination *Pagination `json:"pagination,omitempty"`
	}

	User struct {
		ID        string  `json:"id"`
		Created   *int64  `json:"created,omitempty"`
		Karma     *int64  `json:"karma,omitempty"`
		About     string  `json:"about,omitempty"`
		Submitted []int64 `json:"submitted,omitempty"`
		Delay     *int64  `json:"delay,omitempty"`
		// Whether the profile has been fetched, or the row is only a stub
		Fetched bool `json:"fetched"`
	}

	ListItemsRequest struct {
		Type string
	}

	SearchRequest struct {
		Query string
	}
)

func (l ListItemsRequest) Validate() error {
	if l.Type == "" {
		return hnerrs.E("invalid request", http.StatusBadRequest, hnerrs.Detail{Field: "type", Error: "required"})
	}
	if !hn.ItemType(l.Type).Valid() {
		return hnerrs.E("invalid request", http.StatusBadRequest, hnerrs.Detail{Field: "type", Error: "unknown item type"})
	}

	return nil
}

func (s SearchRequest) Validate() error {
	q := strings.TrimSpace(s.Query)
	if q == "" {
		return hnerrs.E("invalid request", http.StatusBadRequest, hnerrs.Detail{Field: "q", Error: "required"})
	}
	if len(q) > MaxQueryLength {
		return hnerrs.E("query too long", http.StatusUnprocessableEntity)
	}
	if goaway.IsProfane(q) {
		return hnerrs.E("profanity detected in query", http.StatusUnprocessableEntity)
	}

	return nil
}
