package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	v1 "github.com/jdholdren/hnews/api/items/v1"
	hnerrs "github.com/jdholdren/hnews/internal/errors"
	"github.com/jdholdren/hnews/internal/hn"
	"github.com/jdholdren/hnews/internal/serverutil"
)

func (s Server) getItems(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx           = r.Context()
		req           = v1.ListItemsRequest{Type: r.URL.Query().Get("type")}
		limit, offset = parsePaginationParams(r)
	)
	if err := req.Validate(); err != nil {
		return err
	}
	typ := hn.ItemType(req.Type)

	items, err := s.repo.Items(ctx, typ, offset, limit)
	if err != nil {
		return fmt.Errorf("error listing items: %s", err)
	}
	total, err := s.repo.CountItems(ctx, typ)
	if err != nil {
		return fmt.Errorf("error counting items: %s", err)
	}

	resp, err := apiItems(items)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.ItemList{
		Items:      resp,
		Pagination: pagination(limit, offset, total),
	})
}

func (s Server) getItem(w http.ResponseWriter, r *http.Request) error {
	id, err := itemID(r)
	if err != nil {
		return err
	}

	item, err := s.item(r, id)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, item)
}

// Direct replies: the options of a poll, or the comments on a story, poll, or comment.
func (s Server) getItemComments(w http.ResponseWriter, r *http.Request) error {
	id, err := itemID(r)
	if err != nil {
		return err
	}

	// 404 on the parent rather than an empty list
	if _, err := s.item(r, id); err != nil {
		return err
	}

	children, err := s.repo.Children(r.Context(), id)
	if err != nil {
		return fmt.Errorf("error fetching children: %s", err)
	}
	resp, err := apiItems(children)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.ItemList{Items: resp})
}

func (s Server) getUser(w http.ResponseWriter, r *http.Request) error {
	userID := mux.Vars(r)["userID"]

	usr, err := s.repo.User(r.Context(), userID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiUser(usr))
}

func (s Server) getSearch(w http.ResponseWriter, r *http.Request) error {
	var (
		req           = v1.SearchRequest{Query: r.URL.Query().Get("q")}
		limit, offset = parsePaginationParams(r)
	)
	if err := req.Validate(); err != nil {
		return err
	}

	items, err := s.repo.Search(r.Context(), req.Query, offset, limit)
	if err != nil {
		return fmt.Errorf("error searching: %s", err)
	}
	resp, err := apiItems(items)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.ItemList{
		Items:      resp,
		Pagination: pagination(limit, offset, 0),
	})
}

// Rendered items are cached since they're never updated after ingestion.
func (s Server) item(r *http.Request, id int64) (v1.Item, error) {
	if resp, ok := s.itemRespCache.Get(id); ok {
		return resp, nil
	}

	item, err := s.repo.Item(r.Context(), id)
	if err != nil {
		return v1.Item{}, err
	}
	resp, err := apiItem(item)
	if err != nil {
		return v1.Item{}, fmt.Errorf("error rendering item %d: %s", id, err)
	}
	s.itemRespCache.Add(id, resp)

	return resp, nil
}

func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["itemID"], 10, 64)
	if err != nil || id <= 0 {
		return 0, hnerrs.E("invalid item id", http.StatusBadRequest)
	}

	return id, nil
}
