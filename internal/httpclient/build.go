package httpclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/urlsync"
)

// BuildURL assembles the final address: path placeholders are filled
// from matching param rows, every other enabled row with a key
// becomes a query pair. Rows left disabled or without a key never
// reach the wire.
func BuildURL(req *restmodel.Request) string {
	base := strings.TrimSpace(req.URL)
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}

	pathNames := urlsync.PathParamNames(base)
	pathSet := make(map[string]struct{}, len(pathNames))
	for _, name := range pathNames {
		pathSet[name] = struct{}{}
	}

	values := make(map[string]string)
	for _, row := range req.Params {
		key := strings.TrimSpace(row.Key)
		if !row.Enabled || key == "" {
			continue
		}
		if _, isPath := pathSet[key]; !isPath {
			continue
		}
		if _, dup := values[key]; !dup {
			values[key] = row.Value
		}
	}
	for name, value := range values {
		escaped := url.PathEscape(value)
		base = strings.ReplaceAll(base, ":"+name, escaped)
		base = strings.ReplaceAll(base, "{"+name+"}", escaped)
	}

	var query strings.Builder
	for _, row := range req.Params {
		key := strings.TrimSpace(row.Key)
		if !row.Enabled || key == "" {
			continue
		}
		if _, isPath := pathSet[key]; isPath {
			continue
		}
		if query.Len() > 0 {
			query.WriteByte('&')
		}
		query.WriteString(url.QueryEscape(key))
		query.WriteByte('=')
		query.WriteString(url.QueryEscape(row.Value))
	}

	if query.Len() == 0 {
		return base
	}
	return base + "?" + query.String()
}

// BuildHeaders folds the header rows into a map where the last
// occurrence of a key wins, then overlays the auth spec. Form-data
// drops any user Content-Type because the multipart writer owns the
// boundary.
func (c *Client) BuildHeaders(ctx context.Context, req *restmodel.Request) (map[string]string, error) {
	headers := make(map[string]string)
	for _, row := range req.Headers {
		key := strings.TrimSpace(row.Key)
		if !row.Enabled || key == "" {
			continue
		}
		for existing := range headers {
			if strings.EqualFold(existing, key) && existing != key {
				delete(headers, existing)
			}
		}
		headers[key] = row.Value
	}

	if c.auth != nil {
		if err := c.auth.Apply(ctx, req.Auth, headers); err != nil {
			return nil, err
		}
	}

	if req.BodyType == restmodel.BodyFormData {
		for key := range headers {
			if strings.EqualFold(key, "Content-Type") {
				delete(headers, key)
			}
		}
	}
	return headers, nil
}

// BuildBody renders the request payload. The returned content type is
// non-empty only when the body itself dictates it (multipart
// boundary); visible header rows are not touched here.
func BuildBody(req *restmodel.Request) (io.Reader, string, error) {
	if !req.HasBody() {
		return nil, "", nil
	}
	switch req.BodyType {
	case restmodel.BodyJSON, restmodel.BodyRaw:
		return strings.NewReader(req.Body), "", nil
	case restmodel.BodyFormData:
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for _, row := range req.FormData {
			key := strings.TrimSpace(row.Key)
			if !row.Enabled || key == "" {
				continue
			}
			if err := writer.WriteField(key, row.Value); err != nil {
				return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "encode form field %s", key)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "finish form body")
		}
		return &buf, writer.FormDataContentType(), nil
	}
	return nil, "", nil
}
