package curl

import (
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/urlsync"
)

// Generate renders a request as a multi-line curl command. The output
// parses back into an equivalent request via Parse.
func Generate(req *restmodel.Request) string {
	var parts []string
	parts = append(parts, "curl -X "+strings.ToUpper(req.Method))
	parts = append(parts, shellQuote(urlsync.URLFromParams(req.URL, req.Params)))

	for _, row := range req.Headers {
		if !row.Enabled || strings.TrimSpace(row.Key) == "" {
			continue
		}
		parts = append(parts, "-H "+shellQuote(row.Key+": "+row.Value))
	}

	switch req.BodyType {
	case restmodel.BodyJSON, restmodel.BodyRaw:
		if strings.TrimSpace(req.Body) != "" {
			parts = append(parts, "-d "+shellQuote(req.Body))
		}
	case restmodel.BodyFormData:
		for _, row := range req.FormData {
			if !row.Enabled || strings.TrimSpace(row.Key) == "" {
				continue
			}
			parts = append(parts, "-F "+shellQuote(row.Key+"="+row.Value))
		}
	}

	return strings.Join(parts, " \\\n  ")
}

// shellQuote single-quotes a value, escaping embedded single quotes
// the POSIX way ('\'' splice).
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\&|;<>()$`*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
