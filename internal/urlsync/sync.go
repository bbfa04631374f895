package urlsync

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/sched"
)

type direction int

const (
	idle direction = iota
	urlToParams
	paramsToURL
)

// Synchronizer keeps the address field and the param table coherent
// without feedback loops. URL edits update the table immediately;
// table edits update the URL after a quiet period so typing a value
// does not rewrite the address on every keystroke. While one
// direction is applying, the opposite direction is latched off.
type Synchronizer struct {
	mu    sync.Mutex
	state direction
	deb   *sched.Debouncer

	applyParams func([]restmodel.Row)
	applyURL    func(string)

	pendingURL    string
	pendingParams []restmodel.Row
}

func NewSynchronizer(delay time.Duration, applyURL func(string), applyParams func([]restmodel.Row)) *Synchronizer {
	s := &Synchronizer{
		applyParams: applyParams,
		applyURL:    applyURL,
	}
	s.deb = sched.New(delay, s.flushParamsToURL)
	return s
}

// URLChanged reacts to an address edit. It derives the param table
// and hands it to applyParams synchronously.
func (s *Synchronizer) URLChanged(rawURL string, params []restmodel.Row) {
	s.mu.Lock()
	if s.state == paramsToURL {
		s.mu.Unlock()
		return
	}
	s.state = urlToParams
	s.mu.Unlock()

	rows := ParamsFromURL(rawURL, params)
	if s.applyParams != nil {
		s.applyParams(rows)
	}

	s.mu.Lock()
	s.state = idle
	s.mu.Unlock()
}

// ParamsChanged reacts to a table edit. The URL rebuild is debounced;
// only the latest snapshot wins.
func (s *Synchronizer) ParamsChanged(rawURL string, params []restmodel.Row) {
	s.mu.Lock()
	if s.state == urlToParams {
		s.mu.Unlock()
		return
	}
	s.pendingURL = rawURL
	s.pendingParams = append([]restmodel.Row(nil), params...)
	s.mu.Unlock()

	s.deb.Trigger()
}

// Flush applies a pending table edit to the URL immediately.
func (s *Synchronizer) Flush() {
	s.deb.FlushNow()
}

func (s *Synchronizer) Stop() {
	s.deb.Stop()
}

func (s *Synchronizer) flushParamsToURL() {
	s.mu.Lock()
	rawURL := s.pendingURL
	params := s.pendingParams
	s.pendingParams = nil
	s.state = paramsToURL
	s.mu.Unlock()

	if s.applyURL != nil {
		s.applyURL(URLFromParams(rawURL, params))
	}

	s.mu.Lock()
	s.state = idle
	s.mu.Unlock()
}
