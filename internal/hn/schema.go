package hn

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Attributes every variant shares.
var commonAttributes = []string{"id", "type", "by", "time", "deleted", "dead", "kids", "text"}

// attributes is the allow-list of JSON keys for each variant.
var attributes = map[ItemType]map[string]bool{
	TypeStory:   attributeSet("descendants", "score", "title", "url"),
	TypeJob:     attributeSet("score", "title", "url"),
	TypePoll:    attributeSet("descendants", "parts", "score", "title"),
	TypePollOpt: attributeSet("poll", "parent", "score"),
	TypeComment: attributeSet("parent"),
}

func attributeSet(extra ...string) map[string]bool {
	set := make(map[string]bool, len(commonAttributes)+len(extra))
	for _, a := range commonAttributes {
		set[a] = true
	}
	for _, a := range extra {
		set[a] = true
	}
	return set
}

// Attributes returns the sorted JSON keys recognised for the variant.
func Attributes(t ItemType) []string {
	set := attributes[t]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// The item as the upstream API sends it.
type wireItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          *string `json:"by"`
	Time        *int64  `json:"time"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
	Kids        []int64 `json:"kids"`
	Text        string  `json:"text"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Score       *int64  `json:"score"`
	Descendants *int64  `json:"descendants"`
	Parts       []int64 `json:"parts"`
	Parent      *int64  `json:"parent"`
	Poll        *int64  `json:"poll"`
}

// ParseItem reads the type tag of a raw item and validates it against that
// variant's attributes before building the Item.
//
// Validation is all or nothing: a single unrecognised key rejects the item
// with ErrSchemaMismatch. A missing or unknown tag is ErrUnknownType.
func ParseItem(raw []byte) (Item, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Item{}, fmt.Errorf("%w: item is not an object", ErrUnknownType)
	}

	var typ ItemType
	if tag, ok := fields["type"]; ok {
		var s string
		if err := json.Unmarshal(tag, &s); err != nil {
			return Item{}, fmt.Errorf("%w: type tag is not a string", ErrUnknownType)
		}
		typ = ItemType(s)
	}
	if !typ.Valid() {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	allowed := attributes[typ]
	var unknown []string
	for key := range fields {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Item{}, fmt.Errorf("%w: %s has no field(s) %s, expected any of %s",
			ErrSchemaMismatch, typ, strings.Join(unknown, ", "), strings.Join(Attributes(typ), ", "))
	}

	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, err)
	}
	if w.ID <= 0 {
		return Item{}, fmt.Errorf("%w: id must be positive, got %d", ErrSchemaMismatch, w.ID)
	}

	item := Item{
		ID:          w.ID,
		Type:        typ,
		Author:      w.By,
		Time:        w.Time,
		Deleted:     w.Deleted,
		Dead:        w.Dead,
		Kids:        idList(w.Kids),
		Text:        w.Text,
		Title:       w.Title,
		URL:         w.URL,
		Score:       w.Score,
		Descendants: w.Descendants,
		Parts:       idList(w.Parts),
		ParentID:    w.Parent,
	}
	// Poll options point at their poll with `poll` upstream
	if typ == TypePollOpt && w.Poll != nil {
		item.ParentID = w.Poll
	}

	return item, nil
}

// Lists of ids are kept as opaque JSON array text.
func idList(ids []int64) *string {
	if ids == nil {
		return nil
	}
	byts, _ := json.Marshal(ids)
	s := string(byts)
	return &s
}

// IDs decodes a list column back into ids. Malformed text yields nil.
func IDs(list *string) []int64 {
	if list == nil || *list == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*list), &ids); err != nil {
		return nil
	}
	return ids
}
