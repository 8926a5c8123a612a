package api

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sym01/htmlsanitizer"

	v1 "github.com/jdholdren/hnews/api/items/v1"
	"github.com/jdholdren/hnews/internal/hn"
)

var stripPolicy = bluemonday.StrictPolicy()

// HN text fields are HTML fragments. Paragraph breaks survive as newlines in the plain version.
func plainText(s string) string {
	s = strings.ReplaceAll(s, "<p>", "\n\n")
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

func safeHTML(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return htmlsanitizer.NewHTMLSanitizer().SanitizeString(s)
}

func apiItem(item hn.Item) (v1.Item, error) {
	textHTML, err := safeHTML(item.Text)
	if err != nil {
		return v1.Item{}, err
	}

	ret := v1.Item{
		ID:          item.ID,
		Type:        string(item.Type),
		Time:        item.Time,
		Deleted:     item.Deleted,
		Dead:        item.Dead,
		Kids:        hn.IDs(item.Kids),
		Title:       item.Title,
		URL:         item.URL,
		Score:       item.Score,
		Parts:       hn.IDs(item.Parts),
		Parent:      item.ParentID,
		Descendants: item.Descendants,
		Created:     item.CreatedAt,
		Text:        plainText(item.Text),
		TextHTML:    textHTML,
	}
	if item.Author != nil {
		ret.By = *item.Author
	}
	if item.ParentType != nil {
		ret.ParentType = string(*item.ParentType)
	}

	return ret, nil
}

func apiItems(items []hn.Item) ([]v1.Item, error) {
	ret := make([]v1.Item, 0, len(items))
	for _, item := range items {
		i, err := apiItem(item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, i)
	}

	return ret, nil
}

func apiUser(u hn.User) v1.User {
	submitted := u.Submitted
	return v1.User{
		ID:        u.ID,
		Created:   u.Created,
		Karma:     u.Karma,
		About:     plainText(u.About),
		Submitted: hn.IDs(&submitted),
		Delay:     u.Delay,
		Fetched:   u.FetchedAt != nil,
	}
}
