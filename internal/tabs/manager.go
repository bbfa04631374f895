package tabs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/sched"
)

// Tab is one open request editor. Title is the user's custom name;
// empty means the display name is derived. Response holds the last
// dispatch outcome so it survives tab switches and restarts.
type Tab struct {
	ID       int                 `json:"id"`
	Title    string              `json:"title,omitempty"`
	Request  *restmodel.Request  `json:"request"`
	Response *restmodel.Response `json:"response,omitempty"`
	Dirty    bool                `json:"dirty"`
}

// derivedName is the label a tab resolves to on its own: the custom
// title when set, else collection/name, else trailing URL path
// segments or the host. Empty when the tab carries nothing to derive
// from.
func derivedName(t *Tab) string {
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	if t.Request == nil {
		return ""
	}
	if t.Request.Name != "" {
		if t.Request.CollectionName != "" {
			return t.Request.CollectionName + "/" + t.Request.Name
		}
		return t.Request.Name
	}
	return nameFromURL(t.Request.URL)
}

func nameFromURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.SplitN(trimmed, "?", 2)[0]
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	segments := strings.Split(trimmed, "/")
	host := segments[0]
	var path []string
	for _, seg := range segments[1:] {
		if seg != "" {
			path = append(path, seg)
		}
	}
	switch {
	case len(path) >= 2:
		return path[len(path)-2] + "/" + path[len(path)-1]
	case len(path) == 1:
		return path[0]
	default:
		return host
	}
}

// SessionStore persists the tab session snapshot between runs.
type SessionStore interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// Snapshot is the serialized session: the open tabs, which one is
// active and the id counter, so restored tabs keep their identity and
// new ones never collide with old ones.
type Snapshot struct {
	Tabs        []*Tab `json:"tabs"`
	ActiveTabID int    `json:"activeTabId"`
	NextTabID   int    `json:"nextTabId"`
}

// Manager owns the tab list. There is always at least one tab; ids
// grow monotonically and are never reused, even across restarts.
// Closing a dirty tab asks the confirm callback first.
type Manager struct {
	mu       sync.Mutex
	tabs     []*Tab
	activeID int
	nextID   int

	session SessionStore
	confirm func(prompt string) bool
	logf    func(format string, args ...interface{})
	deb     *sched.Debouncer
}

type Options struct {
	Session SessionStore
	Confirm func(prompt string) bool
	Logf    func(format string, args ...interface{})
	// SaveDelay overrides the session persist debounce, mainly for tests.
	SaveDelay time.Duration
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		nextID:  1,
		session: opts.Session,
		confirm: opts.Confirm,
		logf:    opts.Logf,
	}
	if m.confirm == nil {
		m.confirm = func(string) bool { return true }
	}
	if m.logf == nil {
		m.logf = func(string, ...interface{}) {}
	}
	m.deb = sched.New(opts.SaveDelay, m.saveSession)

	if !m.restoreSession() {
		m.mu.Lock()
		m.openLocked()
		m.mu.Unlock()
	}
	return m
}

func (m *Manager) restoreSession() bool {
	if m.session == nil {
		return false
	}
	data, err := m.session.Load()
	if err != nil || len(data) == 0 {
		return false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.logf("restore session: %v", err)
		return false
	}
	if len(snap.Tabs) == 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs = snap.Tabs
	m.activeID = snap.ActiveTabID
	m.nextID = snap.NextTabID
	for _, tab := range m.tabs {
		if tab.Request == nil {
			tab.Request = restmodel.NewRequest()
		}
		if tab.ID >= m.nextID {
			m.nextID = tab.ID + 1
		}
	}
	if m.findLocked(m.activeID) < 0 {
		m.activeID = m.tabs[0].ID
	}
	return true
}

// Open creates a fresh tab and activates it.
func (m *Manager) Open() *Tab {
	m.mu.Lock()
	tab := m.openLocked()
	m.mu.Unlock()
	m.deb.Trigger()
	return tab
}

func (m *Manager) openLocked() *Tab {
	tab := &Tab{
		ID:      m.nextID,
		Request: restmodel.NewRequest(),
	}
	m.nextID++
	m.tabs = append(m.tabs, tab)
	m.activeID = tab.ID
	return tab
}

// DisplayName is the label shown for the tab. Custom title wins,
// then the request-derived name, then a generated "New Request"
// label that stays unique among the open tabs that already resolve
// to one.
func (m *Manager) DisplayName(t *Tab) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayNameLocked(t)
}

func (m *Manager) displayNameLocked(t *Tab) string {
	if name := derivedName(t); name != "" {
		return name
	}
	taken := make(map[string]struct{})
	for _, tab := range m.tabs {
		if name := derivedName(tab); strings.HasPrefix(name, "New Request") {
			taken[name] = struct{}{}
		}
	}
	if _, used := taken["New Request"]; !used {
		return "New Request"
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("New Request (%d)", n)
		if _, used := taken[candidate]; !used {
			return candidate
		}
	}
}

// Close removes a tab and reports whether it was removed. Unknown ids
// are a no-op. Dirty tabs go through the confirm callback; a declined
// prompt keeps the tab. Closing the active tab activates the neighbor
// at the clamped index, and closing the last remaining tab immediately
// opens a fresh one so the list is never empty.
func (m *Manager) Close(id int) bool {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	tab := m.tabs[idx]
	if tab.Dirty {
		prompt := fmt.Sprintf("%q has unsaved changes. Close anyway?", m.displayNameLocked(tab))
		m.mu.Unlock()
		if !m.confirm(prompt) {
			return false
		}
		m.mu.Lock()
		idx = m.findLocked(id)
		if idx < 0 {
			m.mu.Unlock()
			return false
		}
	}

	wasActive := m.activeID == id
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)

	if len(m.tabs) == 0 {
		m.openLocked()
	} else if wasActive {
		if idx >= len(m.tabs) {
			idx = len(m.tabs) - 1
		}
		m.activeID = m.tabs[idx].ID
	}
	m.mu.Unlock()
	m.deb.Trigger()
	return true
}

// CloseOthers closes every tab except the given one and reports
// whether they were removed. Unknown ids are a no-op. If any of the
// others is dirty, one confirm covers the whole set; declining keeps
// all of them (all-or-nothing).
func (m *Manager) CloseOthers(id int) bool {
	m.mu.Lock()
	if m.findLocked(id) < 0 {
		m.mu.Unlock()
		return false
	}
	if !m.confirmDiscardLocked(func(t *Tab) bool { return t.ID != id }) {
		m.mu.Unlock()
		return false
	}
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.tabs = []*Tab{m.tabs[idx]}
	m.activeID = id
	m.mu.Unlock()
	m.deb.Trigger()
	return true
}

// CloseAll closes every tab, then opens a fresh one so the list is
// never empty. Same all-or-nothing dirty gate as CloseOthers.
func (m *Manager) CloseAll() bool {
	m.mu.Lock()
	if !m.confirmDiscardLocked(func(*Tab) bool { return true }) {
		m.mu.Unlock()
		return false
	}
	m.tabs = nil
	m.openLocked()
	m.mu.Unlock()
	m.deb.Trigger()
	return true
}

// confirmDiscardLocked asks once for the set of dirty tabs matched by
// include. It may drop the lock for the prompt; returns true when the
// close may proceed.
func (m *Manager) confirmDiscardLocked(include func(*Tab) bool) bool {
	dirty := 0
	for _, tab := range m.tabs {
		if include(tab) && tab.Dirty {
			dirty++
		}
	}
	if dirty == 0 {
		return true
	}
	prompt := fmt.Sprintf("%d tab(s) have unsaved changes. Close anyway?", dirty)
	m.mu.Unlock()
	ok := m.confirm(prompt)
	m.mu.Lock()
	return ok
}

// Reorder moves the tab at fromIndex to toIndex. Out-of-range or
// equal indices leave the order untouched.
func (m *Manager) Reorder(fromIndex, toIndex int) error {
	m.mu.Lock()
	if fromIndex < 0 || fromIndex >= len(m.tabs) ||
		toIndex < 0 || toIndex >= len(m.tabs) || fromIndex == toIndex {
		m.mu.Unlock()
		return errdef.New(errdef.CodeValidation, "invalid reorder %d -> %d", fromIndex, toIndex)
	}
	tab := m.tabs[fromIndex]
	m.tabs = append(m.tabs[:fromIndex], m.tabs[fromIndex+1:]...)
	rest := append([]*Tab{}, m.tabs[toIndex:]...)
	m.tabs = append(m.tabs[:toIndex], tab)
	m.tabs = append(m.tabs, rest...)
	m.mu.Unlock()
	m.deb.Trigger()
	return nil
}

// Activate switches the active tab and returns it, or nil when the id
// is unknown (no state change).
func (m *Manager) Activate(id int) *Tab {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil
	}
	tab := m.tabs[idx]
	m.activeID = id
	m.mu.Unlock()
	m.deb.Trigger()
	return tab
}

// Duplicate copies a tab to the end of the list and activates the
// copy. Request and response are deep-copied and the dirty flag is
// carried over; "(Copy)" is appended only when the source had a
// custom title.
func (m *Manager) Duplicate(id int) (*Tab, error) {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, errdef.New(errdef.CodeValidation, "no tab with id %d", id)
	}
	src := m.tabs[idx]
	dup := &Tab{
		ID:       m.nextID,
		Request:  src.Request.Clone(),
		Response: src.Response.Clone(),
		Dirty:    src.Dirty,
	}
	if strings.TrimSpace(src.Title) != "" {
		dup.Title = src.Title + " (Copy)"
	}
	m.nextID++
	m.tabs = append(m.tabs, dup)
	m.activeID = dup.ID
	m.mu.Unlock()
	m.deb.Trigger()
	return dup, nil
}

// Rename sets the custom title; a blank or whitespace-only title
// clears it so the display name falls back to derivation.
func (m *Manager) Rename(id int, title string) error {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return errdef.New(errdef.CodeValidation, "no tab with id %d", id)
	}
	m.tabs[idx].Title = strings.TrimSpace(title)
	m.mu.Unlock()
	m.deb.Trigger()
	return nil
}

// UpdateRequest replaces a tab's request state and marks it dirty.
func (m *Manager) UpdateRequest(id int, req *restmodel.Request) error {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return errdef.New(errdef.CodeValidation, "no tab with id %d", id)
	}
	m.tabs[idx].Request = req
	m.tabs[idx].Dirty = true
	m.mu.Unlock()
	m.deb.Trigger()
	return nil
}

// SetResponse stores the outcome of the tab's latest dispatch. It
// does not touch the dirty flag; receiving a response is not an edit.
func (m *Manager) SetResponse(id int, resp *restmodel.Response) error {
	m.mu.Lock()
	idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return errdef.New(errdef.CodeValidation, "no tab with id %d", id)
	}
	m.tabs[idx].Response = resp
	m.mu.Unlock()
	m.deb.Trigger()
	return nil
}

// MarkDirty flags a tab without touching its request, for edits that
// happen outside UpdateRequest.
func (m *Manager) MarkDirty(id int) {
	m.mu.Lock()
	if idx := m.findLocked(id); idx >= 0 {
		m.tabs[idx].Dirty = true
	}
	m.mu.Unlock()
	m.deb.Trigger()
}

// MarkClean clears the dirty flag after a save.
func (m *Manager) MarkClean(id int) {
	m.mu.Lock()
	if idx := m.findLocked(id); idx >= 0 {
		m.tabs[idx].Dirty = false
	}
	m.mu.Unlock()
	m.deb.Trigger()
}

func (m *Manager) Active() *Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findLocked(m.activeID)
	if idx < 0 {
		return nil
	}
	return m.tabs[idx]
}

func (m *Manager) Tabs() []*Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tab, len(m.tabs))
	copy(out, m.tabs)
	return out
}

func (m *Manager) Get(id int) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findLocked(id)
	if idx < 0 {
		return nil, false
	}
	return m.tabs[idx], true
}

func (m *Manager) findLocked(id int) int {
	for i, tab := range m.tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

// FlushSession writes a pending session snapshot immediately. Call on
// shutdown so the debounce window cannot swallow the last change.
func (m *Manager) FlushSession() {
	m.deb.FlushNow()
}

func (m *Manager) Stop() {
	m.deb.FlushNow()
	m.deb.Stop()
}

func (m *Manager) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs := make([]*Tab, len(m.tabs))
	for i, tab := range m.tabs {
		clone := *tab
		clone.Request = tab.Request.Clone()
		clone.Response = tab.Response.Clone()
		tabs[i] = &clone
	}
	return Snapshot{Tabs: tabs, ActiveTabID: m.activeID, NextTabID: m.nextID}
}

// saveSession runs on the debouncer goroutine. Persist failures only
// log; losing a session snapshot must never break editing.
func (m *Manager) saveSession() {
	if m.session == nil {
		return
	}
	data, err := json.Marshal(m.snapshot())
	if err != nil {
		m.logf("encode session: %v", err)
		return
	}
	if err := m.session.Save(data); err != nil {
		m.logf("save session: %v", err)
	}
}
