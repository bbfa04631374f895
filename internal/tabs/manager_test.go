package tabs

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

type memSession struct {
	mu   sync.Mutex
	data []byte
}

func (s *memSession) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}

func (s *memSession) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func TestManagerStartsWithOneTab(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	tabs := m.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("expected one initial tab, got %d", len(tabs))
	}
	if tabs[0].Title != "" || tabs[0].ID != 1 {
		t.Fatalf("unexpected initial tab %+v", tabs[0])
	}
	if got := m.DisplayName(tabs[0]); got != "New Request" {
		t.Fatalf("unexpected initial display name %q", got)
	}
	if m.Active() == nil || m.Active().ID != 1 {
		t.Fatalf("initial tab should be active")
	}
}

func TestIDsAreMonotonicAndNeverReused(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	second := m.Open()
	if second.ID != 2 {
		t.Fatalf("expected id 2, got %d", second.ID)
	}
	if !m.Close(second.ID) {
		t.Fatalf("close should remove the tab")
	}
	third := m.Open()
	if third.ID != 3 {
		t.Fatalf("closed ids must not be reused, got %d", third.ID)
	}
}

func TestCloseActivatesClampedNeighbor(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	b := m.Open()
	c := m.Open()
	if m.Active().ID != c.ID {
		t.Fatalf("expected last opened tab active")
	}

	// closing the last tab clamps to the new last index
	if !m.Close(c.ID) {
		t.Fatalf("close should remove the tab")
	}
	if m.Active().ID != b.ID {
		t.Fatalf("expected neighbor %d active, got %d", b.ID, m.Active().ID)
	}

	// closing a middle tab while it is active picks the tab that
	// slid into its index
	d := m.Open()
	if m.Activate(b.ID) == nil {
		t.Fatalf("activate should find the tab")
	}
	if !m.Close(b.ID) {
		t.Fatalf("close should remove the tab")
	}
	if m.Active().ID != d.ID {
		t.Fatalf("expected %d active, got %d", d.ID, m.Active().ID)
	}
}

func TestCloseLastTabOpensFreshOne(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	only := m.Active()
	if !m.Close(only.ID) {
		t.Fatalf("close should remove the tab")
	}
	tabs := m.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("expected replacement tab, got %d tabs", len(tabs))
	}
	if tabs[0].ID == only.ID {
		t.Fatalf("replacement tab reused id %d", only.ID)
	}
}

func TestCloseUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	before := m.Tabs()
	if m.Close(99) {
		t.Fatalf("closing an unknown id must report false")
	}
	if m.Activate(99) != nil {
		t.Fatalf("activating an unknown id must return nil")
	}
	if m.CloseOthers(99) {
		t.Fatalf("close others with an unknown id must report false")
	}
	after := m.Tabs()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("unknown ids must leave the tab list untouched")
	}
}

func TestDirtyCloseGoesThroughConfirm(t *testing.T) {
	t.Parallel()

	allow := false
	var prompts []string
	m := NewManager(Options{Confirm: func(p string) bool {
		prompts = append(prompts, p)
		return allow
	}})
	defer m.Stop()

	tab := m.Active()
	req := restmodel.NewRequest()
	req.URL = "https://example.com"
	if err := m.UpdateRequest(tab.ID, req); err != nil {
		t.Fatalf("update: %v", err)
	}

	if m.Close(tab.ID) {
		t.Fatalf("declined close must report false")
	}
	if len(m.Tabs()) != 1 || m.Tabs()[0].ID != tab.ID {
		t.Fatalf("declined close should keep the tab")
	}
	if len(prompts) != 1 {
		t.Fatalf("expected one confirm prompt, got %d", len(prompts))
	}

	allow = true
	if !m.Close(tab.ID) {
		t.Fatalf("confirmed close must report true")
	}
	if len(m.Tabs()) != 1 || m.Tabs()[0].ID == tab.ID {
		t.Fatalf("confirmed close should replace the tab")
	}

	// a clean tab closes without prompting
	clean := m.Active()
	if !m.Close(clean.ID) {
		t.Fatalf("close should remove the tab")
	}
	if len(prompts) != 2 {
		t.Fatalf("clean close should not prompt, got %d prompts", len(prompts))
	}
}

func TestDuplicateAppendsCopy(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	tab := m.Active()
	req := restmodel.NewRequest()
	req.URL = "https://example.com/a"
	if err := m.UpdateRequest(tab.ID, req); err != nil {
		t.Fatalf("update: %v", err)
	}

	dup, err := m.Duplicate(tab.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Title != "" {
		t.Fatalf("unnamed source must not get a copy title, got %q", dup.Title)
	}
	if dup.Request == tab.Request {
		t.Fatalf("duplicate must clone the request")
	}
	if dup.Request.URL != "https://example.com/a" {
		t.Fatalf("request state not copied")
	}
	if m.Active().ID != dup.ID {
		t.Fatalf("duplicate should become active")
	}

	if err := m.Rename(dup.ID, "Named"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	named, err := m.Duplicate(dup.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if named.Title != "Named (Copy)" {
		t.Fatalf("custom name should get the copy suffix, got %q", named.Title)
	}
}

func TestDuplicateCarriesDirtyAndResponse(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	tab := m.Active()
	if err := m.UpdateRequest(tab.ID, restmodel.NewRequest()); err != nil {
		t.Fatalf("update: %v", err)
	}
	resp := &restmodel.Response{
		Status:  200,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    `{"ok":true}`,
	}
	if err := m.SetResponse(tab.ID, resp); err != nil {
		t.Fatalf("set response: %v", err)
	}

	dup, err := m.Duplicate(tab.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if !dup.Dirty {
		t.Fatalf("duplicate must carry the source dirty flag")
	}
	if dup.Response == nil || dup.Response.Status != 200 {
		t.Fatalf("duplicate must copy the response, got %+v", dup.Response)
	}
	if dup.Response == resp {
		t.Fatalf("duplicate must clone the response")
	}
	dup.Response.Headers["Content-Type"][0] = "text/plain"
	if resp.Headers["Content-Type"][0] != "application/json" {
		t.Fatalf("response headers are shared between source and copy")
	}
}

func TestSessionPersistsDebounced(t *testing.T) {
	t.Parallel()

	session := &memSession{}
	m := NewManager(Options{Session: session, SaveDelay: 20 * time.Millisecond})

	m.Open()
	m.Open()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		data, _ := session.Load()
		if len(data) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	data, _ := session.Load()
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Tabs) != 3 || snap.NextTabID != 4 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	restored := NewManager(Options{Session: session})
	defer restored.Stop()
	if len(restored.Tabs()) != 3 {
		t.Fatalf("expected restored tabs, got %d", len(restored.Tabs()))
	}
	if restored.Active().ID != snap.ActiveTabID {
		t.Fatalf("active tab not restored")
	}
	next := restored.Open()
	if next.ID != 4 {
		t.Fatalf("id counter not restored, got %d", next.ID)
	}
}

func TestCloseOthersKeepsOnlyTarget(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	m.Open()
	keep := m.Open()
	m.Open()

	if !m.CloseOthers(keep.ID) {
		t.Fatalf("close others should remove the rest")
	}
	tabs := m.Tabs()
	if len(tabs) != 1 || tabs[0].ID != keep.ID {
		t.Fatalf("expected only tab %d, got %+v", keep.ID, tabs)
	}
	if m.Active().ID != keep.ID {
		t.Fatalf("kept tab should be active")
	}
}

func TestCloseOthersAllOrNothing(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{Confirm: func(string) bool { return false }})
	defer m.Stop()

	first := m.Active()
	dirty := m.Open()
	if err := m.UpdateRequest(dirty.ID, restmodel.NewRequest()); err != nil {
		t.Fatalf("update: %v", err)
	}

	if m.CloseOthers(first.ID) {
		t.Fatalf("declined confirm must report false")
	}
	if len(m.Tabs()) != 2 {
		t.Fatalf("declined confirm must close nothing, got %d tabs", len(m.Tabs()))
	}
}

func TestCloseAllOpensFreshTab(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	m.Open()
	m.Open()
	if !m.CloseAll() {
		t.Fatalf("close all should clear the list")
	}
	tabs := m.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("expected a single fresh tab, got %d", len(tabs))
	}
	if tabs[0].ID != 4 {
		t.Fatalf("fresh tab should continue the id sequence, got %d", tabs[0].ID)
	}
}

func TestReorderValidatesIndices(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	m.Open()
	m.Open()

	if err := m.Reorder(0, 2); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	tabs := m.Tabs()
	if tabs[0].ID != 2 || tabs[1].ID != 3 || tabs[2].ID != 1 {
		t.Fatalf("unexpected order %d %d %d", tabs[0].ID, tabs[1].ID, tabs[2].ID)
	}

	if err := m.Reorder(1, 1); err == nil {
		t.Fatalf("equal indices must be rejected")
	}
	if err := m.Reorder(-1, 0); err == nil {
		t.Fatalf("negative index must be rejected")
	}
	if err := m.Reorder(0, 3); err == nil {
		t.Fatalf("out of range index must be rejected")
	}
}

func TestDisplayNameDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tab  Tab
		want string
	}{
		{
			name: "custom title wins",
			tab:  Tab{Title: "My Tab", Request: &restmodel.Request{Name: "Saved"}},
			want: "My Tab",
		},
		{
			name: "collection and request name",
			tab:  Tab{Request: &restmodel.Request{Name: "List users", CollectionName: "Users"}},
			want: "Users/List users",
		},
		{
			name: "request name alone",
			tab:  Tab{Request: &restmodel.Request{Name: "List users"}},
			want: "List users",
		},
		{
			name: "trailing path segments",
			tab:  Tab{Request: &restmodel.Request{URL: "https://api.example.com/v1/users/42?x=1"}},
			want: "users/42",
		},
		{
			name: "single path segment",
			tab:  Tab{Request: &restmodel.Request{URL: "https://api.example.com/health"}},
			want: "health",
		},
		{
			name: "host only",
			tab:  Tab{Request: &restmodel.Request{URL: "https://api.example.com"}},
			want: "api.example.com",
		},
		{
			name: "empty request",
			tab:  Tab{Request: &restmodel.Request{}},
			want: "New Request",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(Options{})
			defer m.Stop()
			if got := m.DisplayName(&tc.tab); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDisplayNameFallbackStaysUnique(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	first := m.Active()
	if err := m.Rename(first.ID, "New Request"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	second := m.Open()
	if got := m.DisplayName(second); got != "New Request (2)" {
		t.Fatalf("expected counter to start at 2, got %q", got)
	}

	if err := m.Rename(second.ID, "New Request (2)"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	third := m.Open()
	if got := m.DisplayName(third); got != "New Request (3)" {
		t.Fatalf("expected counter to skip taken labels, got %q", got)
	}
}

func TestRenameBlankClearsCustomName(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{})
	defer m.Stop()

	tab := m.Active()
	req := restmodel.NewRequest()
	req.URL = "https://api.example.com/users/42"
	if err := m.UpdateRequest(tab.ID, req); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.Rename(tab.ID, "Custom"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := m.DisplayName(tab); got != "Custom" {
		t.Fatalf("custom name should win, got %q", got)
	}
	if err := m.Rename(tab.ID, "   "); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := m.DisplayName(tab); got != "users/42" {
		t.Fatalf("blank rename should fall back to derivation, got %q", got)
	}
}
