package history

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/store"
)

const DefaultLimit = 100

// Entry records the terminal outcome of one dispatched request,
// together with the request content that produced it so an entry can
// be reopened as an editable draft. Validation rejections never get
// here; cancellations and transport failures do, with Success false.
type Entry struct {
	ID              string              `json:"id,omitempty"`
	Name            string              `json:"name,omitempty"`
	CollectionID    string              `json:"collectionId,omitempty"`
	CollectionName  string              `json:"collectionName,omitempty"`
	Method          string              `json:"method"`
	URL             string              `json:"url"`
	RequestHeaders  []restmodel.Row     `json:"requestHeaders,omitempty"`
	RequestParams   []restmodel.Row     `json:"requestParams,omitempty"`
	RequestBody     string              `json:"requestBody,omitempty"`
	BodyType        restmodel.BodyType  `json:"bodyType,omitempty"`
	Status          int                 `json:"status"`
	StatusText      string              `json:"statusText"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    string              `json:"responseBody,omitempty"`
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	Duration        time.Duration       `json:"duration"`
	Size            int64               `json:"size"`
	ExecutedAt      time.Time           `json:"executedAt"`
}

type Service struct {
	store *store.Store
	limit int
}

func NewService(s *store.Store, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{store: s, limit: limit}
}

// Record persists the entry and holds the cap by dropping the oldest
// entries.
func (s *Service) Record(entry Entry) (Entry, error) {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "encode history entry")
	}
	obj, err := s.store.Add(store.BucketHistory, data, "")
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "save history entry")
	}
	entry.ID = obj.ID
	if err := s.store.Prune(store.BucketHistory, s.limit); err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "prune history")
	}
	return entry, nil
}

// All returns entries newest first.
func (s *Service) All() ([]Entry, error) {
	objects, err := s.store.All(store.BucketHistory)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "load history")
	}
	entries := make([]Entry, 0, len(objects))
	for i := len(objects) - 1; i >= 0; i-- {
		var entry Entry
		if err := json.Unmarshal(objects[i].Data, &entry); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "decode history entry %s", objects[i].ID)
		}
		entry.ID = objects[i].ID
		entries = append(entries, entry)
	}
	return entries, nil
}

// Search filters entries by a case-insensitive match across method,
// URL, names, bodies, headers, status and error text.
func (s *Service) Search(query string) ([]Entry, error) {
	entries, err := s.All()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return entries, nil
	}
	var out []Entry
	for _, entry := range entries {
		if entryMatches(entry, needle) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func entryMatches(entry Entry, needle string) bool {
	fields := []string{
		entry.Method,
		entry.URL,
		entry.Name,
		entry.CollectionName,
		entry.RequestBody,
		entry.ResponseBody,
		entry.StatusText,
		entry.Error,
		strconv.Itoa(entry.Status),
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	for _, row := range entry.RequestHeaders {
		if strings.Contains(strings.ToLower(row.Key), needle) ||
			strings.Contains(strings.ToLower(row.Value), needle) {
			return true
		}
	}
	for key, values := range entry.ResponseHeaders {
		if strings.Contains(strings.ToLower(key), needle) {
			return true
		}
		for _, value := range values {
			if strings.Contains(strings.ToLower(value), needle) {
				return true
			}
		}
	}
	return false
}

func (s *Service) Delete(id string) error {
	if err := s.store.Delete(store.BucketHistory, id); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "delete history entry %s", id)
	}
	return nil
}

func (s *Service) Clear() error {
	if err := s.store.Clear(store.BucketHistory); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "clear history")
	}
	return nil
}
