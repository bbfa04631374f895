package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/store"
)

func newTestService(t *testing.T, limit int) *Service {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, limit)
}

func TestRecordTrimsToLimit(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 3)
	for i := 0; i < 5; i++ {
		_, err := svc.Record(Entry{
			Method: "GET",
			URL:    fmt.Sprintf("https://example.com/%d", i),
			Status: 200,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := svc.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://example.com/4" {
		t.Fatalf("expected newest first, got %s", entries[0].URL)
	}
	if entries[2].URL != "https://example.com/2" {
		t.Fatalf("expected oldest surviving entry last, got %s", entries[2].URL)
	}
}

func TestSearchMatchesAcrossFields(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, 0)
	seed := []Entry{
		{
			Method: "GET", URL: "https://api.example.com/users", Name: "List Users",
			Status: 200, StatusText: "OK", Success: true,
			RequestHeaders:  []restmodel.Row{{Enabled: true, Key: "X-Tenant", Value: "acme"}},
			ResponseHeaders: map[string][]string{"X-Request-Id": {"trace-77"}},
		},
		{
			Method: "POST", URL: "https://api.example.com/orders", Name: "Create Order",
			Status: 500, StatusText: "Internal Server Error",
			RequestBody:  `{"sku":"widget-9"}`,
			BodyType:     restmodel.BodyJSON,
			ResponseBody: `{"error":"stock exhausted"}`,
		},
		{Method: "GET", URL: "https://other.test/ping", Error: "Request was cancelled"},
	}
	for _, entry := range seed {
		if _, err := svc.Record(entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	cases := []struct {
		query string
		want  int
	}{
		{"users", 1},
		{"post", 1},
		{"500", 1},
		{"cancelled", 1},
		{"example.com", 2},
		{"widget-9", 1},
		{"stock exhausted", 1},
		{"x-tenant", 1},
		{"acme", 1},
		{"trace-77", 1},
		{"", 3},
		{"zzz", 0},
	}
	for _, tc := range cases {
		got, err := svc.Search(tc.query)
		if err != nil {
			t.Fatalf("search %q: %v", tc.query, err)
		}
		if len(got) != tc.want {
			t.Fatalf("search %q: expected %d, got %d", tc.query, tc.want, len(got))
		}
	}
}

func TestGroupByDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	entries := []Entry{
		{URL: "a", ExecutedAt: now.Add(-time.Hour)},
		{URL: "b", ExecutedAt: now.Add(-20 * time.Hour)},
		{URL: "c", ExecutedAt: now.AddDate(0, 0, -1).Add(-10 * time.Hour)},
		{URL: "d", ExecutedAt: now.AddDate(0, 0, -5)},
		{URL: "e", ExecutedAt: now.AddDate(0, 0, -30)},
	}
	groups := GroupByDate(entries, now)

	if len(groups.Today) != 1 || groups.Today[0].URL != "a" {
		t.Fatalf("unexpected today group %v", groups.Today)
	}
	if len(groups.Yesterday) != 2 {
		t.Fatalf("expected 2 yesterday entries, got %v", groups.Yesterday)
	}
	if len(groups.ThisWeek) != 1 || groups.ThisWeek[0].URL != "d" {
		t.Fatalf("unexpected this week group %v", groups.ThisWeek)
	}
	if len(groups.Older) != 1 || groups.Older[0].URL != "e" {
		t.Fatalf("unexpected older group %v", groups.Older)
	}
}
