// Package ingest runs ingestion cycles: pull ids from the HN list endpoints,
// fetch the items, and write the new ones.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jdholdren/hnews/internal/fetch"
	"github.com/jdholdren/hnews/internal/hn"
	"github.com/jdholdren/hnews/internal/logger"
)

// DefaultBootstrapLimit is how many ids per category a bootstrap cycle seeds.
const DefaultBootstrapLimit = 100

// ErrCycleRunning is returned when a cycle is asked to start while another one is going.
var ErrCycleRunning = errors.New("ingestion cycle already running")

type (
	// Fetcher is the surface of the HN API a cycle uses.
	Fetcher interface {
		FetchLists(ctx context.Context) []fetch.IDList
		FetchItems(ctx context.Context, ids []int64) []json.RawMessage
		MaxItem(ctx context.Context) (int64, bool)
		FetchProfiles(ctx context.Context, ids []string) []hn.Profile
	}

	// PopulationChecker picks the mode of a cycle.
	PopulationChecker interface {
		IsPopulated(ctx context.Context) (bool, error)
	}

	// Repo is the storage a cycle writes to.
	Repo interface {
		hn.ItemRepo
		hn.UserRepo
	}

	Config struct {
		// Most ids taken from each category while bootstrapping.
		BootstrapLimit int
		// Whether to fill in profiles for the authors of new items.
		FetchAuthors bool
	}

	// Ingester runs one cycle at a time.
	Ingester struct {
		fetcher Fetcher
		checker PopulationChecker
		writer  Writer
		repo    Repo
		cfg     Config

		running atomic.Bool
	}
)

// Mode is how a cycle decided to ingest.
type Mode string

const (
	// ModeBootstrap seeds every category when the tables are empty.
	ModeBootstrap Mode = "bootstrap"
	// ModeIncremental only fetches the newest item.
	ModeIncremental Mode = "incremental"
)

// Report tallies what happened during a cycle.
type Report struct {
	CycleID  string `json:"cycle_id"`
	Mode     Mode   `json:"mode"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Rejected int    `json:"rejected"`
	Absent   int    `json:"absent"`  // Fetches that came back empty
	Profiles int    `json:"profiles"` // Author profiles filled in
}

func New(fetcher Fetcher, checker PopulationChecker, repo Repo, cfg Config) *Ingester {
	if cfg.BootstrapLimit <= 0 {
		cfg.BootstrapLimit = DefaultBootstrapLimit
	}

	return &Ingester{
		fetcher: fetcher,
		checker: checker,
		writer:  NewWriter(repo),
		repo:    repo,
		cfg:     cfg,
	}
}

// RunCycle performs one ingestion cycle and returns.
//
// Empty tables bootstrap from the category lists, otherwise only the newest
// item is fetched. Failures of single fetches or writes are counted in the
// report, not returned. Calling it while a cycle is running returns ErrCycleRunning.
func (i *Ingester) RunCycle(ctx context.Context) (Report, error) {
	if !i.running.CompareAndSwap(false, true) {
		return Report{}, ErrCycleRunning
	}
	defer i.running.Store(false)

	r := Report{CycleID: uuid.NewString()}
	ctx = logger.Ctx(ctx, slog.String("cycle_id", r.CycleID))

	populated, err := i.checker.IsPopulated(ctx)
	if err != nil {
		return r, fmt.Errorf("error picking cycle mode: %w", err)
	}

	authors := make(map[string]struct{})
	if populated {
		r.Mode = ModeIncremental
		i.incremental(ctx, &r, authors)
	} else {
		r.Mode = ModeBootstrap
		if err := i.bootstrap(ctx, &r, authors); err != nil {
			return r, err
		}
	}

	if i.cfg.FetchAuthors {
		i.fillAuthors(ctx, &r, authors)
	}

	slog.InfoContext(ctx, "ingestion cycle complete",
		"mode", r.Mode,
		"created", r.Created,
		"existing", r.Existing,
		"rejected", r.Rejected,
		"absent", r.Absent,
		"profiles", r.Profiles,
	)

	return r, nil
}

func (i *Ingester) bootstrap(ctx context.Context, r *Report, authors map[string]struct{}) error {
	for _, list := range i.fetcher.FetchLists(ctx) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap interrupted: %w", err)
		}

		ids := list.IDs
		if len(ids) > i.cfg.BootstrapLimit {
			ids = ids[:i.cfg.BootstrapLimit]
		}
		slog.InfoContext(ctx, "ingesting category", "category", list.Category, "ids", len(ids))

		i.writeAll(ctx, r, i.fetcher.FetchItems(ctx, ids), authors)
	}

	return nil
}

func (i *Ingester) incremental(ctx context.Context, r *Report, authors map[string]struct{}) {
	id, ok := i.fetcher.MaxItem(ctx)
	if !ok {
		r.Absent++
		return
	}
	slog.InfoContext(ctx, "ingesting newest item", "item_id", id)

	i.writeAll(ctx, r, i.fetcher.FetchItems(ctx, []int64{id}), authors)
}

// Absent bodies were already logged by the fetcher and are only counted.
func (i *Ingester) writeAll(ctx context.Context, r *Report, bodies []json.RawMessage, authors map[string]struct{}) {
	for _, body := range bodies {
		if body == nil {
			r.Absent++
			continue
		}

		item, out := i.writer.Write(ctx, body)
		switch out.Status {
		case hn.OutcomeCreated:
			r.Created++
			if item.Author != nil && *item.Author != "" {
				authors[*item.Author] = struct{}{}
			}
		case hn.OutcomeAlreadyExists:
			r.Existing++
		case hn.OutcomeRejected:
			r.Rejected++
		}
	}
}

// Fills in the profiles of authors that only have a stub.
func (i *Ingester) fillAuthors(ctx context.Context, r *Report, authors map[string]struct{}) {
	if len(authors) == 0 {
		return
	}

	names := make([]string, 0, len(authors))
	for name := range authors {
		names = append(names, name)
	}
	slices.Sort(names)

	missing, err := i.repo.UsersWithoutProfile(ctx, names)
	if err != nil {
		slog.ErrorContext(ctx, "error finding users without profile", "error", err)
		return
	}

	for _, p := range i.fetcher.FetchProfiles(ctx, missing) {
		if err := i.repo.UpdateProfile(ctx, p); err != nil {
			slog.ErrorContext(ctx, "error updating profile", "user_id", p.ID, "error", err)
			continue
		}
		r.Profiles++
	}
}
