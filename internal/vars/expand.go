package vars

import (
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

// ExpandRequest returns a copy of the request with placeholders
// substituted everywhere the wire can see them: URL, rows, body and
// auth parameters. The input is never mutated.
func (r *Resolver) ExpandRequest(req *restmodel.Request) *restmodel.Request {
	if req == nil {
		return nil
	}
	out := req.Clone()
	out.URL = r.Expand(out.URL)
	out.Body = r.Expand(out.Body)
	expandRows(r, out.Params)
	expandRows(r, out.Headers)
	expandRows(r, out.FormData)
	for key, value := range out.Auth.Data {
		out.Auth.Data[key] = r.Expand(value)
	}
	return out
}

func expandRows(r *Resolver, rows []restmodel.Row) {
	for i := range rows {
		rows[i].Key = r.Expand(rows[i].Key)
		rows[i].Value = r.Expand(rows[i].Value)
	}
}
