package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
)

// --- Mock/Fake Implementations ---

// MockFetcher returns a canned result or an error and records requests.
type MockFetcher struct {
	Result   model.FetchResult
	Err      error
	Requests []model.FetchRequest
}

func (m *MockFetcher) Fetch(_ context.Context, req model.FetchRequest) (model.FetchResult, error) {
	m.Requests = append(m.Requests, req)
	return m.Result, m.Err
}

// InMemoryStore is a map-based Store for testing.
type InMemoryStore struct {
	mu         sync.Mutex
	postings   map[string]model.Posting
	irrelevant map[string]string
	state      map[model.Source]model.SyncState
	observed   []string
	nextID     int64
	commitErr  error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		postings:   map[string]model.Posting{},
		irrelevant: map[string]string{},
		state:      map[model.Source]model.SyncState{},
	}
}

func (s *InMemoryStore) HasPosting(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.postings[url]
	return ok, nil
}

func (s *InMemoryStore) IsIrrelevant(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.irrelevant[url]
	return ok, nil
}

func (s *InMemoryStore) SyncState(_ context.Context, source model.Source) (model.SyncState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[source]
	return st, ok, nil
}

func (s *InMemoryStore) CommitRun(_ context.Context, b model.RunBatch) (model.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return model.CommitResult{}, s.commitErr
	}
	var res model.CommitResult
	for _, p := range b.Postings {
		if _, ok := s.postings[p.URL]; ok {
			res.Duplicates++
			continue
		}
		s.nextID++
		p.ID = s.nextID
		s.postings[p.URL] = p
		res.Inserted = append(res.Inserted, p)
	}
	for _, u := range b.Irrelevant {
		s.irrelevant[u.URL] = u.Reason
	}
	s.observed = append(s.observed, b.Observed...)
	for _, url := range b.Withdrawn {
		if p, ok := s.postings[url]; ok && p.Status == model.StatusActive {
			p.Status = model.StatusExpired
			s.postings[url] = p
			res.Expired++
		}
	}
	if b.SyncState != nil {
		st := *b.SyncState
		st.JobsAddedLastRun = len(res.Inserted)
		st.JobsRemovedLastRun = res.Expired
		s.state[st.Source] = st
	}
	return res, nil
}

// CountingFilter rejects URLs in reject and counts calls per URL.
type CountingFilter struct {
	mu     sync.Mutex
	reject map[string]bool
	calls  map[string]int
}

func NewCountingFilter(reject ...string) *CountingFilter {
	f := &CountingFilter{reject: map[string]bool{}, calls: map[string]int{}}
	for _, u := range reject {
		f.reject[u] = true
	}
	return f
}

func (f *CountingFilter) Evaluate(_ context.Context, p model.Posting) model.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[p.URL]++
	if f.reject[p.URL] {
		return model.Decision{Accepted: false, Reason: "NEI"}
	}
	return model.Decision{Accepted: true, Reason: "JA"}
}

// CountingSummarizer returns a fixed summary and counts calls.
type CountingSummarizer struct {
	calls int
}

func (s *CountingSummarizer) Summarize(_ context.Context, title, _ string) string {
	s.calls++
	return "sammendrag: " + title
}

// RecordingNotifier records which postings were sent to Notify.
type RecordingNotifier struct {
	Notified []model.Posting
	Err      error
}

func (n *RecordingNotifier) Notify(postings []model.Posting) error {
	n.Notified = append(n.Notified, postings...)
	return n.Err
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makePostings(urls ...string) []model.Posting {
	postings := make([]model.Posting, len(urls))
	for i, u := range urls {
		postings[i] = model.Posting{
			URL:         u,
			Source:      model.SourceFINN,
			Title:       "Data Engineer " + u,
			Company:     "Acme",
			Description: "SQL og Python",
			Deadline:    "15.11.2099",
		}
	}
	return postings
}

func newTestRunner(fetcher model.Fetcher, st Store, filter RelevancyFilter, sum Summarizer, n model.Notifier) *Runner {
	return NewRunner(model.SourceFINN, fetcher, []string{"sql"}, st, filter, sum, n, discardLogger())
}

// --- Tests ---

func TestRun_AddsNewPostings(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("a", "b"), Cursor: "c1"}}
	st := NewInMemoryStore()
	sum := &CountingSummarizer{}
	notifier := &RecordingNotifier{}
	r := newTestRunner(fetcher, st, NewCountingFilter(), sum, notifier)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Fetched != 2 || stats.Added != 2 {
		t.Errorf("expected fetched 2 added 2, got %+v", stats)
	}
	if stats.RunID == "" {
		t.Error("expected a run ID")
	}
	if sum.calls != 2 {
		t.Errorf("expected 2 summaries, got %d", sum.calls)
	}
	if len(notifier.Notified) != 2 {
		t.Errorf("expected 2 notified postings, got %d", len(notifier.Notified))
	}

	p := st.postings["a"]
	if p.Summary != "sammendrag: Data Engineer a" {
		t.Errorf("unexpected summary %q", p.Summary)
	}
	if p.Status != model.StatusActive || p.FirstSeenAt.IsZero() || p.LastCheckedAt == nil {
		t.Errorf("expected active posting with timestamps, got %+v", p)
	}
	if p.ExpireAt == nil || p.ExpireAt.Year() != 2099 {
		t.Errorf("expected expire_at from deadline, got %v", p.ExpireAt)
	}

	state := st.state[model.SourceFINN]
	if state.ContinuationToken != "c1" || state.JobsAddedLastRun != 2 {
		t.Errorf("unexpected sync state %+v", state)
	}
}

func TestRun_IdempotentIngestion(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("a", "b")}}
	st := NewInMemoryStore()
	filter := NewCountingFilter()
	r := newTestRunner(fetcher, st, filter, &CountingSummarizer{}, nil)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if stats.Added != 0 || stats.Duplicates != 2 {
		t.Errorf("expected 0 added 2 duplicates on second run, got %+v", stats)
	}
	if len(st.postings) != 2 {
		t.Errorf("expected 2 stored postings, got %d", len(st.postings))
	}
	if filter.calls["a"] != 1 {
		t.Errorf("expected stored posting not to be re-filtered, got %d calls", filter.calls["a"])
	}
	if len(st.observed) != 2 {
		t.Errorf("expected 2 re-observations, got %v", st.observed)
	}
}

func TestRun_IrrelevantCacheShortCircuits(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("good", "bad")}}
	st := NewInMemoryStore()
	filter := NewCountingFilter("bad")
	sum := &CountingSummarizer{}
	r := newTestRunner(fetcher, st, filter, sum, nil)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if stats.Added != 1 || stats.Filtered != 1 {
		t.Errorf("expected 1 added 1 filtered, got %+v", stats)
	}
	if _, ok := st.irrelevant["bad"]; !ok {
		t.Fatal("expected rejected URL in irrelevant cache")
	}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if filter.calls["bad"] != 1 {
		t.Errorf("expected no filter call for cached URL on second run, got %d total", filter.calls["bad"])
	}
	if sum.calls != 1 {
		t.Errorf("expected summarizer never called for rejected URL, got %d calls", sum.calls)
	}
}

func TestRun_DuplicateURLsInOneFetch(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("a", "a")}}
	st := NewInMemoryStore()
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Added != 1 || stats.Duplicates != 1 {
		t.Errorf("expected 1 added 1 duplicate, got %+v", stats)
	}
}

func TestRun_NotModifiedLeavesSyncState(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{NotModified: true, Cursor: "old"}}
	st := NewInMemoryStore()
	st.state[model.SourceFINN] = model.SyncState{Source: model.SourceFINN, ContinuationToken: "old", JobsAddedLastRun: 7}
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.NotModified {
		t.Error("expected NotModified in stats")
	}
	if got := st.state[model.SourceFINN]; got.JobsAddedLastRun != 7 {
		t.Errorf("expected sync state untouched, got %+v", got)
	}
	if fetcher.Requests[0].Cursor != "old" {
		t.Errorf("expected stored cursor passed to fetcher, got %q", fetcher.Requests[0].Cursor)
	}
}

func TestRun_FetchErrorSkipsSyncState(t *testing.T) {
	fetcher := &MockFetcher{Err: errors.New("listing 503")}
	st := NewInMemoryStore()
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	stats, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if stats.Added != 0 {
		t.Errorf("expected 0 added, got %d", stats.Added)
	}
	if _, ok := st.state[model.SourceFINN]; ok {
		t.Error("expected no sync state after fetch failure")
	}
}

func TestRun_WithdrawnPostingsExpire(t *testing.T) {
	st := NewInMemoryStore()
	st.postings["gone"] = model.Posting{URL: "gone", Status: model.StatusActive}
	fetcher := &MockFetcher{Result: model.FetchResult{Withdrawn: []string{"gone", "never-stored"}}}
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Removed != 1 {
		t.Errorf("expected 1 removed, got %d", stats.Removed)
	}
	if st.postings["gone"].Status != model.StatusExpired {
		t.Errorf("expected EXPIRED, got %s", st.postings["gone"].Status)
	}
	if st.state[model.SourceFINN].JobsRemovedLastRun != 1 {
		t.Errorf("expected removed count in sync state, got %+v", st.state[model.SourceFINN])
	}
}

func TestRun_NotifierFailureDoesNotFailRun(t *testing.T) {
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("a")}}
	notifier := &RecordingNotifier{Err: errors.New("slack down")}
	r := newTestRunner(fetcher, NewInMemoryStore(), NewCountingFilter(), &CountingSummarizer{}, notifier)

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Added != 1 {
		t.Errorf("expected 1 added, got %d", stats.Added)
	}
}

func TestRun_CommitErrorIsReturned(t *testing.T) {
	st := NewInMemoryStore()
	st.commitErr = errors.New("disk full")
	fetcher := &MockFetcher{Result: model.FetchResult{Postings: makePostings("a")}}
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected commit error")
	}
}

// blockingFetcher blocks until release is closed.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ model.FetchRequest) (model.FetchResult, error) {
	close(f.started)
	<-f.release
	return model.FetchResult{}, nil
}

func TestRun_OverlapReturnsErrRunInProgress(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	r := newTestRunner(fetcher, NewInMemoryStore(), NewCountingFilter(), &CountingSummarizer{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-fetcher.started

	if _, err := r.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	close(fetcher.release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRun_KnownHookReportsStoredAndIrrelevant(t *testing.T) {
	st := NewInMemoryStore()
	st.postings["stored"] = model.Posting{URL: "stored"}
	st.irrelevant["rejected"] = "NEI"
	fetcher := &MockFetcher{}
	r := newTestRunner(fetcher, st, NewCountingFilter(), &CountingSummarizer{}, nil)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	known := fetcher.Requests[0].Known
	if !known("stored") || !known("rejected") || known("new") {
		t.Error("Known hook misreports stored/irrelevant URLs")
	}
}

// TestRun_NAVPartialFailure drives a real NAV adapter and SQLite store: five
// feed items where the third detail request fails.
func TestRun_NAVPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/feed":
			var items []map[string]any
			for i := 1; i <= 5; i++ {
				items = append(items, map[string]any{
					"id": fmt.Sprintf("u%d", i),
					"_feed_entry": map[string]any{
						"uuid": fmt.Sprintf("u%d", i), "status": "ACTIVE", "title": "SQL-utvikler",
						"businessName": "Acme", "municipal": "BERGEN", "county": "VESTLAND",
					},
				})
			}
			w.Header().Set("ETag", `"e1"`)
			json.NewEncoder(w).Encode(map[string]any{"id": "p1", "items": items})
		case r.URL.Path == "/api/v1/feedentry/u3":
			w.WriteHeader(http.StatusInternalServerError)
		case strings.HasPrefix(r.URL.Path, "/api/v1/feedentry/"):
			w.Write([]byte(`{"title":"SQL-utvikler","description":"SQL hver dag","applicationDue":"Snarest"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer db.Close()

	nav := adapter.NewNAVAdapter(adapter.NAVConfig{
		BaseURL:   srv.URL + "/api/v1",
		Token:     "static",
		Locations: []string{"BERGEN"},
	}, srv.Client(), nil, discardLogger())
	r := NewRunner(model.SourceNAV, nav, []string{"sql"}, db, NewCountingFilter(), &CountingSummarizer{}, nil, discardLogger())

	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Added != 4 || stats.Errors != 1 || stats.Fetched != 5 {
		t.Errorf("expected added 4 errors 1 fetched 5, got %+v", stats)
	}

	state, ok, err := db.SyncState(context.Background(), model.SourceNAV)
	if err != nil || !ok {
		t.Fatalf("expected sync state, got ok=%v err=%v", ok, err)
	}
	if state.JobsAddedLastRun != 4 || state.ContinuationToken == "" {
		t.Errorf("unexpected sync state %+v", state)
	}
	if time.Since(state.LastSyncAt) > time.Minute {
		t.Errorf("unexpected last sync time %v", state.LastSyncAt)
	}
}

func TestRun_NAVLastFeedEntryDecidesStatus(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []string
		wantAdded   int
		wantRemoved int
		wantStored  bool
	}{
		{"republished", []string{"INACTIVE", "ACTIVE"}, 1, 0, true},
		{"withdrawn", []string{"ACTIVE", "INACTIVE"}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.URL.Path == "/api/v1/feed":
					var items []map[string]any
					for _, status := range tt.statuses {
						items = append(items, map[string]any{
							"id": "u1",
							"_feed_entry": map[string]any{
								"uuid": "u1", "status": status, "title": "SQL-utvikler",
								"businessName": "Acme", "municipal": "BERGEN", "county": "VESTLAND",
							},
						})
					}
					json.NewEncoder(w).Encode(map[string]any{"id": "p1", "items": items})
				case r.URL.Path == "/api/v1/feedentry/u1":
					w.Write([]byte(`{"title":"SQL-utvikler","description":"SQL hver dag"}`))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer srv.Close()

			db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			defer db.Close()

			nav := adapter.NewNAVAdapter(adapter.NAVConfig{
				BaseURL: srv.URL + "/api/v1",
				Token:   "static",
			}, srv.Client(), nil, discardLogger())
			n := &RecordingNotifier{}
			r := NewRunner(model.SourceNAV, nav, []string{"sql"}, db, NewCountingFilter(), &CountingSummarizer{}, n, discardLogger())

			stats, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.Added != tt.wantAdded || stats.Removed != tt.wantRemoved {
				t.Errorf("expected added %d removed %d, got %+v", tt.wantAdded, tt.wantRemoved, stats)
			}
			if len(n.Notified) != tt.wantAdded {
				t.Errorf("expected %d notifications, got %d", tt.wantAdded, len(n.Notified))
			}

			p, err := db.GetPostingByURL(context.Background(), adapter.DefaultNAVPostingBase+"u1")
			if !tt.wantStored {
				if !errors.Is(err, store.ErrNotFound) {
					t.Errorf("expected u1 not stored, got %+v err=%v", p, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPostingByURL: %v", err)
			}
			if p.Status != model.StatusActive {
				t.Errorf("expected ACTIVE, got %s", p.Status)
			}
		})
	}
}
