// Package api serves the ingested items over a read-only JSON API.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	v1 "github.com/jdholdren/hnews/api/items/v1"
	"github.com/jdholdren/hnews/internal/hn"
	"github.com/jdholdren/hnews/internal/serverutil"
)

type (
	// Server answers reads against the items the worker has ingested.
	Server struct {
		*http.Server

		// Items never change once written, so rendered ones are kept around
		itemRespCache *lru.Cache[int64, v1.Item]

		repo hn.Repository
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
	}
)

func NewServer(config ServerConfig, repo hn.Repository) *Server {
	var (
		r        = serverutil.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[int64, v1.Item](1024)
	)

	origin := config.CorsOrigin
	if origin == "" {
		origin = "*"
	}

	srvr := Server{
		itemRespCache: cache,
		repo:          repo,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{origin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/api/items", srvr.getItems).Methods(http.MethodGet)
	r.HandleFuncE("/api/items/{itemID:[0-9]+}", srvr.getItem).Methods(http.MethodGet)
	r.HandleFuncE("/api/items/{itemID:[0-9]+}/comments", srvr.getItemComments).Methods(http.MethodGet)
	r.HandleFuncE("/api/users/{userID}", srvr.getUser).Methods(http.MethodGet)
	r.HandleFuncE("/api/search", srvr.getSearch).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", config.Port)

	return &srvr
}
