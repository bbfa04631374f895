package restmodel

import (
	"net/http"
	"strings"
	"time"
)

// Row is one editable key/value line in the params, headers or
// form-data tables. Disabled rows stay visible but never reach the
// wire.
type Row struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

type BodyType string

const (
	BodyNone     BodyType = "none"
	BodyJSON     BodyType = "json"
	BodyFormData BodyType = "form-data"
	BodyRaw      BodyType = "raw"
)

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apikey"
	AuthOAuth2 AuthType = "oauth2"
)

type AuthSpec struct {
	Type AuthType          `json:"type"`
	Data map[string]string `json:"data,omitempty"`
}

func (a AuthSpec) Param(key string) string {
	if a.Data == nil {
		return ""
	}
	return a.Data[key]
}

// Request is the editable request document. It is what tabs hold,
// what collections save and what every importer produces.
type Request struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Method         string   `json:"method"`
	URL            string   `json:"url"`
	Params         []Row    `json:"params"`
	Headers        []Row    `json:"headers"`
	BodyType       BodyType `json:"bodyType"`
	Body           string   `json:"body"`
	FormData       []Row    `json:"formData,omitempty"`
	Auth           AuthSpec `json:"auth"`
	CollectionID   string   `json:"collectionId,omitempty"`
	CollectionName string   `json:"collectionName,omitempty"`
}

// NewRequest returns the blank editor state: a GET with a JSON
// content type pre-set and one empty param row ready for input.
func NewRequest() *Request {
	return &Request{
		Method:   http.MethodGet,
		BodyType: BodyJSON,
		Params:   []Row{{Enabled: true}},
		Headers:  []Row{{Enabled: true, Key: "Content-Type", Value: "application/json"}},
		Auth:     AuthSpec{Type: AuthNone},
	}
}

// Clone deep-copies the request so tab duplication and saved-request
// snapshots never alias row slices.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Params = cloneRows(r.Params)
	out.Headers = cloneRows(r.Headers)
	out.FormData = cloneRows(r.FormData)
	if r.Auth.Data != nil {
		out.Auth.Data = make(map[string]string, len(r.Auth.Data))
		for k, v := range r.Auth.Data {
			out.Auth.Data[k] = v
		}
	}
	return &out
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// HasBody reports whether the configured body type carries payload
// for the given method.
func (r *Request) HasBody() bool {
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodHead:
		return false
	}
	switch r.BodyType {
	case BodyJSON:
		return strings.TrimSpace(r.Body) != ""
	case BodyRaw:
		return r.Body != ""
	case BodyFormData:
		for _, row := range r.FormData {
			if row.Enabled && strings.TrimSpace(row.Key) != "" {
				return true
			}
		}
		return false
	}
	return false
}

// Response is the rendered outcome of one dispatch.
type Response struct {
	Status     int                 `json:"status"`
	StatusText string              `json:"statusText"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	Duration   time.Duration       `json:"duration"`
	Size       int64               `json:"size"`
}

// Clone deep-copies the response so a duplicated tab never shares the
// header map with its source.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	if r.Headers != nil {
		out.Headers = make(map[string][]string, len(r.Headers))
		for key, values := range r.Headers {
			out.Headers[key] = append([]string(nil), values...)
		}
	}
	return &out
}
