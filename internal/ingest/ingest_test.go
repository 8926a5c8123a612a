package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/hnews/internal/fetch"
	"github.com/jdholdren/hnews/internal/hn"
	"github.com/jdholdren/hnews/internal/migrations"
	"github.com/jdholdren/hnews/internal/sqlite"
)

// Fake HN keyed by path. Paths in hang block until the client times out.
func newTestUpstream(t *testing.T, routes map[string]string, hang ...string) *httptest.Server {
	t.Helper()

	hanging := make(map[string]bool)
	for _, p := range hang {
		hanging[p] = true
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hanging[r.URL.Path] {
			<-r.Context().Done()
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestRepo(t *testing.T) sqlite.Repo {
	t.Helper()

	dbx, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	return sqlite.New(dbx)
}

func newTestIngester(srv *httptest.Server, repo Repo, cfg Config) *Ingester {
	client := fetch.NewClient(fetch.Config{
		BaseURL: srv.URL,
		Timeout: 100 * time.Millisecond,
	})
	return New(client, NewChecker(repo), repo, cfg)
}

func TestRunCycle_Bootstrap(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/maxitem.json":     `41000000`,
		"/topstories.json":  `[1,2,3]`,
		"/askstories.json":  `[]`,
		"/showstories.json": `[]`,
		"/jobstories.json":  `[]`,
		"/item/1.json":      `{"id":1,"type":"story","title":"A","by":"alice","time":100}`,
		"/item/3.json":      `{"id":3,"type":"story","title":"C","by":"bob","time":300}`,
	}, "/item/2.json")
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{})
	)

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeBootstrap, r.Mode)
	assert.NotEmpty(t, r.CycleID)
	assert.Equal(t, 2, r.Created)
	assert.Equal(t, 1, r.Absent)
	assert.Zero(t, r.Rejected)

	stories, err := repo.Items(ctx, hn.TypeStory, 0, 10)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, int64(3), stories[0].ID)
	assert.Equal(t, int64(1), stories[1].ID)

	_, err = repo.Item(ctx, 2)
	assert.ErrorIs(t, err, hn.ErrNotFound)
}

func TestRunCycle_BootstrapLimit(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/topstories.json":  `[1,2,3]`,
		"/askstories.json":  `[4]`,
		"/showstories.json": `[]`,
		"/jobstories.json":  `[5,6]`,
		"/item/1.json":      `{"id":1,"type":"story","title":"A","by":"alice"}`,
		"/item/2.json":      `{"id":2,"type":"story","title":"B","by":"alice"}`,
		"/item/3.json":      `{"id":3,"type":"story","title":"C","by":"alice"}`,
		"/item/4.json":      `{"id":4,"type":"story","title":"Ask HN","by":"bob"}`,
		"/item/5.json":      `{"id":5,"type":"job","title":"Hiring","by":"dave"}`,
		"/item/6.json":      `{"id":6,"type":"job","title":"Also hiring","by":"dave"}`,
	})
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{BootstrapLimit: 1})
	)

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Created)

	for _, id := range []int64{1, 4, 5} {
		_, err := repo.Item(ctx, id)
		assert.NoError(t, err, "item %d", id)
	}
	for _, id := range []int64{2, 3, 6} {
		_, err := repo.Item(ctx, id)
		assert.ErrorIs(t, err, hn.ErrNotFound, "item %d", id)
	}
}

func TestRunCycle_Incremental(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/topstories.json":  `[1]`,
		"/askstories.json":  `[]`,
		"/showstories.json": `[]`,
		"/jobstories.json":  `[]`,
		"/maxitem.json":     `1`,
		"/item/1.json":      `{"id":1,"type":"story","title":"A","by":"alice","time":100}`,
	})
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{})
	)

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeBootstrap, r.Mode)
	assert.Equal(t, 1, r.Created)

	// Same upstream again: the tables are populated, and the newest item is already there
	r, err = ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, r.Mode)
	assert.Zero(t, r.Created)
	assert.Equal(t, 1, r.Existing)

	count, err := repo.CountItems(ctx, hn.TypeStory)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunCycle_IncrementalSchemaMismatch(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/maxitem.json": `42`,
		"/item/42.json": `{"id":42,"type":"comment","by":"carol","text":"hi","unexpected_field":"x"}`,
	})
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{})
	)
	require.NoError(t, repo.InsertItem(ctx, hn.Item{ID: 1, Type: hn.TypeStory, Title: "seed"}))

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, r.Mode)
	assert.Equal(t, 1, r.Rejected)

	count, err := repo.CountItems(ctx, hn.TypeComment)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunCycle_IncrementalMaxItemFails(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{})
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{})
	)
	require.NoError(t, repo.InsertItem(ctx, hn.Item{ID: 1, Type: hn.TypeStory, Title: "seed"}))

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Absent)
	assert.Zero(t, r.Created)
}

func TestRunCycle_FetchAuthors(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/topstories.json":  `[1,2]`,
		"/askstories.json":  `[]`,
		"/showstories.json": `[]`,
		"/jobstories.json":  `[]`,
		"/item/1.json":      `{"id":1,"type":"story","title":"A","by":"alice"}`,
		"/item/2.json":      `{"id":2,"type":"story","title":"B","by":"bob"}`,
		"/user/alice.json":  `{"id":"alice","created":1000,"karma":42,"about":"hi","submitted":[1]}`,
	})
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{FetchAuthors: true})
	)

	r, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Profiles)

	alice, err := repo.User(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice.Karma)
	assert.Equal(t, int64(42), *alice.Karma)
	assert.NotNil(t, alice.FetchedAt)

	// Bob's profile 404'd, so only the stub exists
	bob, err := repo.User(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, bob.FetchedAt)
}

func TestRunCycle_Cancelled(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/topstories.json": `[1]`,
		"/item/1.json":     `{"id":1,"type":"story","title":"A"}`,
	})
	var (
		repo = newTestRepo(t)
		ing  = newTestIngester(srv, repo, Config{})
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ing.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRepo struct {
	insertErr   error
	populated   map[hn.ItemType]bool
	populateErr error
	inserted    []hn.Item
}

func (f *fakeRepo) InsertItem(_ context.Context, item hn.Item) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, item)
	return nil
}

func (f *fakeRepo) Populated(context.Context) (map[hn.ItemType]bool, error) {
	return f.populated, f.populateErr
}

func (f *fakeRepo) UsersWithoutProfile(context.Context, []string) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) UpdateProfile(context.Context, hn.Profile) error { return nil }

func TestWrite(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		insertErr error
		status    hn.OutcomeStatus
		reason    hn.RejectReason
	}{
		{
			name:   "created",
			raw:    `{"id":1,"type":"story","title":"A"}`,
			status: hn.OutcomeCreated,
		},
		{
			name:      "exists",
			raw:       `{"id":1,"type":"story","title":"A"}`,
			insertErr: hn.ErrConflict,
			status:    hn.OutcomeAlreadyExists,
		},
		{
			name:      "storage error",
			raw:       `{"id":1,"type":"story","title":"A"}`,
			insertErr: errors.New("disk full"),
			status:    hn.OutcomeRejected,
			reason:    hn.ReasonStorageError,
		},
		{
			name:   "unknown type",
			raw:    `{"id":1,"type":"banner"}`,
			status: hn.OutcomeRejected,
			reason: hn.ReasonUnknownType,
		},
		{
			name:   "schema mismatch",
			raw:    `{"id":1,"type":"job","descendants":3}`,
			status: hn.OutcomeRejected,
			reason: hn.ReasonSchemaMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{insertErr: tt.insertErr}
			_, out := NewWriter(repo).Write(context.Background(), []byte(tt.raw))

			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.reason, out.Reason)
			if tt.status == hn.OutcomeCreated {
				assert.Len(t, repo.inserted, 1)
			}
		})
	}
}

func TestIsPopulated(t *testing.T) {
	tests := []struct {
		name      string
		populated map[hn.ItemType]bool
		want      bool
	}{
		{name: "empty", populated: map[hn.ItemType]bool{}, want: false},
		{name: "only stories", populated: map[hn.ItemType]bool{hn.TypeStory: true}, want: true},
		{name: "only poll options", populated: map[hn.ItemType]bool{hn.TypePollOpt: true}, want: true},
		{
			name: "all false",
			populated: map[hn.ItemType]bool{
				hn.TypeComment: false, hn.TypeJob: false, hn.TypePoll: false, hn.TypePollOpt: false, hn.TypeStory: false,
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewChecker(&fakeRepo{populated: tt.populated}).IsPopulated(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCycle_CheckerError(t *testing.T) {
	repo := &fakeRepo{populateErr: errors.New("db gone")}
	ing := New(&blockingFetcher{}, NewChecker(repo), repo, Config{})

	_, err := ing.RunCycle(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

// Holds MaxItem until released so a cycle stays in flight.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) FetchLists(context.Context) []fetch.IDList { return nil }

func (f *blockingFetcher) FetchItems(_ context.Context, ids []int64) []json.RawMessage {
	return make([]json.RawMessage, len(ids))
}

func (f *blockingFetcher) MaxItem(context.Context) (int64, bool) {
	close(f.entered)
	<-f.release
	return 0, false
}

func (f *blockingFetcher) FetchProfiles(context.Context, []string) []hn.Profile { return nil }

func TestRunCycle_AlreadyRunning(t *testing.T) {
	var (
		repo    = &fakeRepo{populated: map[hn.ItemType]bool{hn.TypeStory: true}}
		fetcher = &blockingFetcher{entered: make(chan struct{}), release: make(chan struct{})}
		ing     = New(fetcher, NewChecker(repo), repo, Config{})
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := ing.RunCycle(context.Background())
		assert.NoError(t, err)
	}()

	<-fetcher.entered
	_, err := ing.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(fetcher.release)
	wg.Wait()

	// Free again once the first one finished
	fetcher.entered = make(chan struct{})
	fetcher.release = make(chan struct{})
	close(fetcher.release)
	_, err = ing.RunCycle(context.Background())
	assert.NoError(t, err)
}

// Always picks bootstrap, whatever the tables hold.
type alwaysEmptyChecker struct{}

func (alwaysEmptyChecker) IsPopulated(context.Context) (bool, error) { return false, nil }

func TestRunCycle_BootstrapTwice(t *testing.T) {
	srv := newTestUpstream(t, map[string]string{
		"/topstories.json":  `[1,2,3]`,
		"/askstories.json":  `[4]`,
		"/showstories.json": `[]`,
		"/jobstories.json":  `[5]`,
		"/item/1.json":      `{"id":1,"type":"story","title":"A","by":"alice","kids":[3]}`,
		"/item/2.json":      `{"id":2,"type":"poll","title":"Tabs?","by":"bob","parts":[4]}`,
		"/item/3.json":      `{"id":3,"type":"comment","by":"carol","parent":1,"text":"hi"}`,
		"/item/4.json":      `{"id":4,"type":"pollopt","by":"bob","poll":2,"score":7}`,
		"/item/5.json":      `{"id":5,"type":"job","title":"Hiring","by":"dave"}`,
	})
	var (
		ctx    = context.Background()
		repo   = newTestRepo(t)
		client = fetch.NewClient(fetch.Config{BaseURL: srv.URL, Timeout: time.Second})
		ing    = New(client, alwaysEmptyChecker{}, repo, Config{})
	)

	r1, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeBootstrap, r1.Mode)
	assert.Equal(t, 5, r1.Created)
	assert.Zero(t, r1.Rejected)

	counts := func() map[hn.ItemType]int {
		ret := make(map[hn.ItemType]int)
		for _, typ := range hn.ItemTypes {
			n, err := repo.CountItems(ctx, typ)
			require.NoError(t, err)
			ret[typ] = n
		}
		return ret
	}
	before := counts()
	for _, typ := range hn.ItemTypes {
		assert.Equal(t, 1, before[typ], "%s", typ)
	}

	r2, err := ing.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeBootstrap, r2.Mode)
	assert.Zero(t, r2.Created)
	assert.Zero(t, r2.Rejected)
	assert.Equal(t, r1.Created, r2.Existing)
	assert.Equal(t, before, counts())
}

func TestWrite_TwiceWithStorage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "story", raw: `{"id":10,"type":"story","title":"A","by":"alice"}`},
		{name: "job", raw: `{"id":11,"type":"job","title":"Hiring","by":"bob"}`},
		{name: "poll", raw: `{"id":12,"type":"poll","title":"Tabs?","parts":[13]}`},
		{name: "pollopt", raw: `{"id":13,"type":"pollopt","poll":12,"score":1}`},
		{name: "comment", raw: `{"id":14,"type":"comment","parent":10,"text":"hi","by":"carol"}`},
	}

	// One database so options and comments can find their parents
	w := NewWriter(newTestRepo(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			_, out := w.Write(ctx, []byte(tt.raw))
			require.Equal(t, hn.OutcomeCreated, out.Status, "%v", out.Err)

			_, out = w.Write(ctx, []byte(tt.raw))
			assert.Equal(t, hn.OutcomeAlreadyExists, out.Status)
		})
	}
}

func TestWrite_LogsRejectedItemID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, out := NewWriter(&fakeRepo{}).Write(context.Background(),
		[]byte(`{"id":42,"type":"comment","by":"carol","text":"hi","unexpected_field":"x"}`))
	require.Equal(t, hn.OutcomeRejected, out.Status)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "rejected item", line["msg"])
	assert.EqualValues(t, 42, line["item_id"])
	assert.Equal(t, string(hn.ReasonSchemaMismatch), line["reason"])
}

func TestRawID(t *testing.T) {
	assert.Equal(t, int64(7), rawID([]byte(`{"id":7,"type":"banner"}`)))
	assert.Zero(t, rawID([]byte(`{"id":"seven"}`)))
	assert.Zero(t, rawID([]byte(`[1,2]`)))
}
