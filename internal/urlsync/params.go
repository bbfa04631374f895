package urlsync

import (
	"net/url"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

// Pair is one decoded query key/value in document order. The stdlib
// query parser returns a map, which loses the order users typed, so
// the raw query gets split by hand here.
type Pair struct {
	Key   string
	Value string
}

// PathParamNames extracts path placeholder names from the part of the
// address before the query, in order of appearance with duplicates
// removed. Both ":id" segments and "{id}" braces count.
func PathParamNames(rawURL string) []string {
	path := rawURL
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
	}

	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, segment := range strings.Split(path, "/") {
		if len(segment) > 1 && segment[0] == ':' {
			add(segment[1:])
			continue
		}
		rest := segment
		for {
			open := strings.IndexByte(rest, '{')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(rest[open:], '}')
			if closing < 0 {
				break
			}
			add(rest[open+1 : open+closing])
			rest = rest[open+closing+1:]
		}
	}
	return names
}

// QueryParams decodes the query portion of the address. Addresses
// without a scheme are still accepted; a https:// prefix is assumed
// just for parsing.
func QueryParams(rawURL string) []Pair {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil
	}
	return splitQuery(parsed.RawQuery)
}

func splitQuery(rawQuery string) []Pair {
	if rawQuery == "" {
		return nil
	}
	var pairs []Pair
	for _, chunk := range strings.Split(rawQuery, "&") {
		if chunk == "" {
			continue
		}
		key, value, _ := strings.Cut(chunk, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}
		if decodedKey == "" {
			continue
		}
		pairs = append(pairs, Pair{Key: decodedKey, Value: decodedValue})
	}
	return pairs
}

// ParamsFromURL derives the param table from the address: path
// placeholders first, then query pairs. When the address carries
// neither, a single blank row is seeded ready for input. A non-empty
// value already typed in the table wins over the value carried by the
// address, so editing the URL never wipes user input. Deriving twice
// from the same address is a no-op.
func ParamsFromURL(rawURL string, existing []restmodel.Row) []restmodel.Row {
	byKey := make(map[string]restmodel.Row, len(existing))
	for _, row := range existing {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		if _, dup := byKey[key]; !dup {
			byKey[key] = row
		}
	}

	var rows []restmodel.Row
	used := make(map[string]struct{})
	appendRow := func(key, urlValue string) {
		if _, dup := used[key]; dup {
			return
		}
		used[key] = struct{}{}
		row := restmodel.Row{Enabled: true, Key: key, Value: urlValue}
		if prev, ok := byKey[key]; ok {
			row.Enabled = prev.Enabled
			if strings.TrimSpace(prev.Value) != "" {
				row.Value = prev.Value
			}
		}
		rows = append(rows, row)
	}

	for _, name := range PathParamNames(rawURL) {
		appendRow(name, "")
	}
	for _, pair := range QueryParams(rawURL) {
		appendRow(pair.Key, pair.Value)
	}

	if len(rows) == 0 {
		rows = append(rows, restmodel.Row{Enabled: true})
	}
	return rows
}

// URLFromParams rebuilds the address from the param table. The path
// part before '?' is kept verbatim, path placeholder keys stay in the
// path and never become query pairs, and disabled or key-less rows
// are dropped. Values are escaped on the way out.
func URLFromParams(rawURL string, params []restmodel.Row) string {
	base := rawURL
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}

	pathKeys := make(map[string]struct{})
	for _, name := range PathParamNames(base) {
		pathKeys[name] = struct{}{}
	}

	var query strings.Builder
	for _, row := range params {
		key := strings.TrimSpace(row.Key)
		if !row.Enabled || key == "" {
			continue
		}
		if _, isPath := pathKeys[key]; isPath {
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
