package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/auth"
	"github.com/unkn0wn-root/reqdeck/internal/history"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/telemetry"
	"github.com/unkn0wn-root/reqdeck/internal/vars"
)

const (
	cancelledMessage  = "Request was cancelled"
	timedOutMessage   = "Request timed out"
	missingURLMessage = "URL is required"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 10 << 20
)

// Recorder receives the terminal outcome of every dispatched attempt.
type Recorder interface {
	Record(entry history.Entry) (history.Entry, error)
}

type Options struct {
	Timeout      time.Duration
	Transport    http.RoundTripper
	Auth         *auth.Provider
	Recorder     Recorder
	Instrumenter telemetry.Instrumenter
	Logf         func(format string, args ...interface{})
}

// Result is the outcome of one Send. It is always a value: transport
// failures and cancellations come back as Error text, never as a Go
// error the caller has to branch on.
type Result struct {
	Success    bool
	Status     int
	StatusText string
	Headers    map[string][]string
	Body       string
	Duration   time.Duration
	Size       int64
	URL        string
	Error      string
}

// Client dispatches requests with a single in-flight slot. Starting a
// new send aborts the previous one; Abort cancels whatever is
// running and is safe to call at any time.
type Client struct {
	httpClient   *http.Client
	auth         *auth.Provider
	recorder     Recorder
	instrumenter telemetry.Instrumenter
	logf         func(format string, args ...interface{})

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	instrumenter := opts.Instrumenter
	if instrumenter == nil {
		instrumenter = telemetry.Noop()
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
		auth:         opts.Auth,
		recorder:     opts.Recorder,
		instrumenter: instrumenter,
		logf:         logf,
	}
}

// Send dispatches the request and returns its outcome. An empty URL
// is rejected before anything touches the network and leaves no
// history entry; every dispatched attempt records one.
func (c *Client) Send(ctx context.Context, req *restmodel.Request, resolver *vars.Resolver) Result {
	if resolver != nil {
		req = resolver.ExpandRequest(req)
	}

	if strings.TrimSpace(req.URL) == "" {
		return Result{Error: missingURLMessage}
	}

	finalURL := BuildURL(req)

	ctx, gen := c.acquireSlot(ctx)
	defer c.releaseSlot(gen)

	start := time.Now()

	headers, err := c.BuildHeaders(ctx, req)
	if err != nil {
		return c.finish(req, Result{
			URL:      finalURL,
			Duration: time.Since(start),
			Error:    errText(ctx, err),
		})
	}

	body, bodyContentType, err := BuildBody(req)
	if err != nil {
		return c.finish(req, Result{
			URL:      finalURL,
			Duration: time.Since(start),
			Error:    errText(ctx, err),
		})
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), finalURL, body)
	if err != nil {
		return c.finish(req, Result{
			URL:      finalURL,
			Duration: time.Since(start),
			Error:    errText(ctx, err),
		})
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}
	if bodyContentType != "" {
		httpReq.Header.Set("Content-Type", bodyContentType)
	}

	ctx, span := c.instrumenter.Start(ctx, telemetry.RequestStart{
		Name:        req.Name,
		HTTPRequest: httpReq,
	})
	httpReq = httpReq.WithContext(ctx)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		result := Result{
			URL:      finalURL,
			Duration: time.Since(start),
			Error:    errText(ctx, err),
		}
		span.End(telemetry.RequestResult{Err: err, Duration: result.Duration})
		return c.finish(req, result)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	duration := time.Since(start)
	if err != nil {
		result := Result{
			URL:      finalURL,
			Status:   resp.StatusCode,
			Duration: duration,
			Error:    errText(ctx, err),
		}
		span.End(telemetry.RequestResult{Err: err, StatusCode: resp.StatusCode, Duration: duration})
		return c.finish(req, result)
	}

	result := Result{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    resp.Header,
		Body:       renderBody(raw, resp.Header.Get("Content-Type")),
		Duration:   duration,
		Size:       int64(len(raw)),
		URL:        finalURL,
	}
	span.End(telemetry.RequestResult{StatusCode: resp.StatusCode, Duration: duration})
	return c.finish(req, result)
}

// Abort cancels the in-flight request, if any. Calling it with
// nothing running is a no-op.
func (c *Client) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) acquireSlot(ctx context.Context) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	return ctx, c.gen
}

func (c *Client) releaseSlot(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) finish(req *restmodel.Request, result Result) Result {
	if c.recorder == nil {
		return result
	}
	entry := history.Entry{
		Name:            req.Name,
		CollectionID:    req.CollectionID,
		CollectionName:  req.CollectionName,
		Method:          strings.ToUpper(req.Method),
		URL:             result.URL,
		RequestHeaders:  append([]restmodel.Row(nil), req.Headers...),
		RequestParams:   append([]restmodel.Row(nil), req.Params...),
		RequestBody:     req.Body,
		BodyType:        req.BodyType,
		Status:          result.Status,
		StatusText:      result.StatusText,
		ResponseHeaders: result.Headers,
		ResponseBody:    result.Body,
		Success:         result.Success,
		Error:           result.Error,
		Duration:        result.Duration,
		Size:            result.Size,
		ExecutedAt:      time.Now().UTC(),
	}
	if _, err := c.recorder.Record(entry); err != nil {
		c.logf("record history: %v", err)
	}
	return result
}

func errText(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return cancelledMessage
	case errors.Is(err, context.DeadlineExceeded):
		return timedOutMessage
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return cancelledMessage
	default:
		return err.Error()
	}
}

func statusText(resp *http.Response) string {
	text := resp.Status
	if idx := strings.IndexByte(text, ' '); idx >= 0 {
		text = text[idx+1:]
	}
	if strings.TrimSpace(text) == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// renderBody pretty-prints JSON payloads so the stored response is
// readable; anything else passes through untouched.
func renderBody(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			if pretty, err := json.MarshalIndent(decoded, "", "  "); err == nil {
				return string(pretty)
			}
		}
	}
	return string(raw)
}
