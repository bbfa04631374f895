package curl

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/urlsync"
)

// ErrNotCurl marks text that does not contain a curl invocation at
// all, as opposed to a malformed one.
var ErrNotCurl = errdef.New(errdef.CodeParse, "not a curl command")

// Parse translates a curl command line into an editable request.
func Parse(command string) (*restmodel.Request, error) {
	tokens, err := splitTokens(command)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "tokenize curl command")
	}
	return parseTokens(tokens)
}

// Shell-style tokenization with single quotes (literal), double quotes (escape-aware),
// and backslash escaping. Single quotes disable escaping so \'doesn\'t terminate the quote.
// Double quotes respect backslashes so you can have \"inside\" strings.
func splitTokens(input string) ([]string, error) {
	var args []string
	var current strings.Builder
	inSingle := false
	inDouble := false
	escaped := false

	flush := func() {
		if current.Len() == 0 {
			return
		}
		args = append(args, current.String())
		current.Reset()
	}

	for _, r := range input {
		switch {
		case escaped:
			// line continuation outside quotes: drop the newline
			if r != '\n' || inSingle || inDouble {
				current.WriteRune(r)
			}
			escaped = false
		case r == '\\':
			if inSingle {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case r == '\'':
			if !inDouble {
				inSingle = !inSingle
			} else {
				current.WriteRune(r)
			}
		case r == '"':
			if !inSingle {
				inDouble = !inDouble
			} else {
				current.WriteRune(r)
			}
		case isWhitespace(r):
			if inSingle || inDouble {
				current.WriteRune(r)
			} else {
				flush()
			}
		default:
			current.WriteRune(r)
		}
	}

	if escaped {
		return nil, fmt.Errorf("unterminated escape sequence")
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quoted string")
	}

	flush()
	return args, nil
}

func parseTokens(tokens []string) (*restmodel.Request, error) {
	idx := findCurlIndex(tokens)
	if idx < 0 {
		return nil, ErrNotCurl
	}

	var target string
	var basic string

	req := restmodel.NewRequest()
	req.Method = "GET"
	req.Headers = nil
	req.Params = nil
	req.BodyType = restmodel.BodyNone

	var headers []restmodel.Row
	var formData []restmodel.Row
	var rawParts []string
	explicitMethod := false
	compressed := false
	positionalOnly := false

	addHeader := func(raw string) {
		name, value := splitHeader(raw)
		if name != "" {
			headers = append(headers, restmodel.Row{Enabled: true, Key: name, Value: value})
		}
	}

	for i := idx + 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "" {
			continue
		}

		if !positionalOnly {
			switch {
			case tok == "--":
				positionalOnly = true
				continue
			case tok == "-X" || tok == "--request":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				req.Method = strings.ToUpper(val)
				explicitMethod = true
				continue
			case strings.HasPrefix(tok, "-X") && len(tok) > 2:
				req.Method = strings.ToUpper(tok[2:])
				explicitMethod = true
				continue
			case strings.HasPrefix(tok, "--request="):
				req.Method = strings.ToUpper(tok[len("--request="):])
				explicitMethod = true
				continue
			case tok == "-H" || tok == "--header":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				addHeader(val)
				continue
			case strings.HasPrefix(tok, "-H") && len(tok) > 2:
				addHeader(tok[2:])
				continue
			case strings.HasPrefix(tok, "--header="):
				addHeader(tok[len("--header="):])
				continue
			case tok == "-u" || tok == "--user":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				basic = val
				continue
			case strings.HasPrefix(tok, "-u") && len(tok) > 2:
				basic = tok[2:]
				continue
			case strings.HasPrefix(tok, "--user="):
				basic = tok[len("--user="):]
				continue
			case tok == "-I" || tok == "--head":
				req.Method = "HEAD"
				explicitMethod = true
				continue
			case tok == "--compressed":
				compressed = true
				continue
			case tok == "--url":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				target = val
				continue
			case strings.HasPrefix(tok, "--url="):
				target = tok[len("--url="):]
				continue
			case tok == "--json":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				rawParts = append(rawParts, val)
				req.BodyType = restmodel.BodyJSON
				continue
			case strings.HasPrefix(tok, "--json="):
				rawParts = append(rawParts, tok[len("--json="):])
				req.BodyType = restmodel.BodyJSON
				continue
			case tok == "-d" || tok == "--data" || tok == "--data-ascii" ||
				tok == "--data-raw" || tok == "--data-binary" || tok == "--data-urlencode":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				rawParts = append(rawParts, val)
				continue
			case strings.HasPrefix(tok, "-d") && len(tok) > 2:
				rawParts = append(rawParts, tok[2:])
				continue
			case strings.HasPrefix(tok, "--data="):
				rawParts = append(rawParts, tok[len("--data="):])
				continue
			case strings.HasPrefix(tok, "--data-raw="):
				rawParts = append(rawParts, tok[len("--data-raw="):])
				continue
			case strings.HasPrefix(tok, "--data-binary="):
				rawParts = append(rawParts, tok[len("--data-binary="):])
				continue
			case strings.HasPrefix(tok, "--data-urlencode="):
				rawParts = append(rawParts, tok[len("--data-urlencode="):])
				continue
			case tok == "-F" || tok == "--form" || tok == "--form-string":
				val, err := consumeNext(tokens, &i, tok)
				if err != nil {
					return nil, err
				}
				key, value := splitFormPair(val)
				formData = append(formData, restmodel.Row{Enabled: true, Key: key, Value: value})
				continue
			case strings.HasPrefix(tok, "-F") && len(tok) > 2:
				key, value := splitFormPair(tok[2:])
				formData = append(formData, restmodel.Row{Enabled: true, Key: key, Value: value})
				continue
			case strings.HasPrefix(tok, "--form="):
				key, value := splitFormPair(tok[len("--form="):])
				formData = append(formData, restmodel.Row{Enabled: true, Key: key, Value: value})
				continue
			case (strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://")) && target == "":
				target = tok
				continue
			case strings.HasPrefix(tok, "-"):
				// unknown flag, skip it (and avoid eating the URL as its value)
				continue
			}
		}

		if target == "" {
			target = tok
			continue
		}
		rawParts = append(rawParts, tok)
	}

	// no URL means this was not a usable curl command
	if target == "" {
		return nil, ErrNotCurl
	}

	if len(formData) > 0 && len(rawParts) > 0 {
		return nil, errdef.New(errdef.CodeParse, "cannot mix --data and --form payloads")
	}
	if len(formData) > 0 {
		req.BodyType = restmodel.BodyFormData
		req.FormData = formData
	} else if len(rawParts) > 0 {
		req.Body = strings.Join(rawParts, "&")
		if req.BodyType != restmodel.BodyJSON {
			req.BodyType = bodyTypeFor(req.Body, headers)
		}
	}

	hasBody := len(formData) > 0 || len(rawParts) > 0
	if hasBody && !explicitMethod && strings.EqualFold(req.Method, "GET") {
		req.Method = "POST"
	}

	if req.BodyType == restmodel.BodyJSON && !hasHeaderRow(headers, "Content-Type") {
		headers = append(headers, restmodel.Row{Enabled: true, Key: "Content-Type", Value: "application/json"})
	}
	if basic != "" && !hasHeaderRow(headers, "Authorization") {
		encoded := base64.StdEncoding.EncodeToString([]byte(basic))
		headers = append(headers, restmodel.Row{Enabled: true, Key: "Authorization", Value: "Basic " + encoded})
	}
	if compressed && !hasHeaderRow(headers, "Accept-Encoding") {
		headers = append(headers, restmodel.Row{Enabled: true, Key: "Accept-Encoding", Value: "gzip, deflate, br"})
	}

	req.URL = strings.Trim(target, "\"'")
	req.Headers = headers
	req.Params = urlsync.ParamsFromURL(req.URL, nil)
	req.Name = requestName(req.Method, req.URL)
	return req, nil
}

// bodyTypeFor guesses the body mode: valid JSON edits as json,
// everything else as raw.
func bodyTypeFor(body string, headers []restmodel.Row) restmodel.BodyType {
	for _, row := range headers {
		if strings.EqualFold(row.Key, "Content-Type") &&
			strings.Contains(strings.ToLower(row.Value), "json") {
			return restmodel.BodyJSON
		}
	}
	var probe interface{}
	if json.Unmarshal([]byte(body), &probe) == nil {
		return restmodel.BodyJSON
	}
	return restmodel.BodyRaw
}

func hasHeaderRow(rows []restmodel.Row, name string) bool {
	for _, row := range rows {
		if strings.EqualFold(row.Key, name) {
			return true
		}
	}
	return false
}

func requestName(method, rawURL string) string {
	name := method + " " + rawURL
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}

func consumeNext(tokens []string, idx *int, flag string) (string, error) {
	*idx++
	if *idx >= len(tokens) {
		return "", errdef.New(errdef.CodeParse, "missing argument for %s", flag)
	}
	return tokens[*idx], nil
}

func findCurlIndex(tokens []string) int {
	for i, tok := range tokens {
		trimmed := strings.TrimSpace(stripPromptPrefix(tok))
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if lower == "curl" {
			return i
		}
		switch lower {
		case "sudo", "env", "command", "time", "noglob":
			continue
		}
		// env-style VAR=value assignments may precede the command
		if strings.Contains(trimmed, "=") && !strings.HasPrefix(trimmed, "-") {
			continue
		}
		return -1
	}
	return -1
}

func splitFormPair(raw string) (string, string) {
	idx := strings.Index(raw, "=")
	if idx < 0 {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:idx]), raw[idx+1:]
}

func splitHeader(header string) (string, string) {
	parts := strings.SplitN(header, ":", 2)
	if len(parts) == 0 {
		return "", ""
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return "", ""
	}
	value := ""
	if len(parts) > 1 {
		value = strings.TrimSpace(parts[1])
	}
	return name, value
}

func stripPromptPrefix(token string) string {
	trimmed := strings.TrimSpace(token)
	prefixes := []string{"$", "%", ">", "!"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(trimmed, prefix) {
			trimmed = strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
