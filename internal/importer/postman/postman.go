package postman

import (
	"encoding/json"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/urlsync"
)

// Collection mirrors the Postman v2.x collection format. Items either
// carry a request or nest further items (folders).
type Collection struct {
	Info struct {
		Name   string `json:"name"`
		Schema string `json:"schema"`
	} `json:"info"`
	Item []Item `json:"item"`
}

type Item struct {
	Name    string   `json:"name"`
	Request *Request `json:"request,omitempty"`
	Item    []Item   `json:"item,omitempty"`
}

type Request struct {
	Method string      `json:"method"`
	Header []Header    `json:"header"`
	Body   *Body       `json:"body,omitempty"`
	Auth   *Auth       `json:"auth,omitempty"`
	URL    interface{} `json:"url"`
}

type Header struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Body struct {
	Mode       string         `json:"mode"`
	Raw        string         `json:"raw,omitempty"`
	FormData   []FormDataItem `json:"formdata,omitempty"`
	URLEncoded []FormDataItem `json:"urlencoded,omitempty"`
}

type FormDataItem struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Src      string `json:"src,omitempty"`
	Type     string `json:"type,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Auth struct {
	Type   string      `json:"type"`
	Basic  []AuthParam `json:"basic,omitempty"`
	Bearer []AuthParam `json:"bearer,omitempty"`
	APIKey []AuthParam `json:"apikey,omitempty"`
}

type AuthParam struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Tree is the converted collection: requests at this level plus
// nested folders.
type Tree struct {
	Name     string
	Requests []*restmodel.Request
	Children []*Tree
}

// Parse converts a Postman v2.x collection export into a foldered
// request tree. Items that cannot be converted fail the whole import.
func Parse(data []byte) (*Tree, error) {
	var col Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "decode Postman collection")
	}
	if col.Info.Name == "" && len(col.Item) == 0 {
		return nil, errdef.New(errdef.CodeParse, "not a Postman collection")
	}

	root := &Tree{Name: col.Info.Name}
	if root.Name == "" {
		root.Name = "Imported Collection"
	}
	if err := convertItems(root, col.Item); err != nil {
		return nil, err
	}
	return root, nil
}

func convertItems(parent *Tree, items []Item) error {
	for _, item := range items {
		if item.Request == nil {
			child := &Tree{Name: item.Name}
			if child.Name == "" {
				child.Name = "Folder"
			}
			if err := convertItems(child, item.Item); err != nil {
				return err
			}
			parent.Children = append(parent.Children, child)
			continue
		}

		req, err := convertRequest(item.Name, item.Request)
		if err != nil {
			return err
		}
		parent.Requests = append(parent.Requests, req)
	}
	return nil
}

func convertRequest(name string, src *Request) (*restmodel.Request, error) {
	rawURL, err := urlString(src.URL)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "item %q", name)
	}

	req := restmodel.NewRequest()
	req.Name = name
	if req.Name == "" {
		req.Name = "Untitled Request"
	}
	req.Method = strings.ToUpper(src.Method)
	if req.Method == "" {
		req.Method = "GET"
	}
	req.URL = rawURL
	req.Headers = nil
	req.Params = urlsync.ParamsFromURL(rawURL, nil)
	req.BodyType = restmodel.BodyNone
	req.Body = ""

	for _, h := range src.Header {
		if strings.TrimSpace(h.Key) == "" {
			continue
		}
		req.Headers = append(req.Headers, restmodel.Row{
			Enabled: !h.Disabled,
			Key:     h.Key,
			Value:   h.Value,
		})
	}

	if src.Body != nil {
		applyBody(req, src.Body)
	}
	if src.Auth != nil {
		applyAuth(req, src.Auth)
	}
	// multipart bodies compute their own boundary header at send time
	if req.BodyType != restmodel.BodyFormData {
		ensureHeader(req, "Content-Type", "application/json")
	}
	return req, nil
}

// urlString handles both URL shapes the format allows: a plain string
// or an object with a raw field.
func urlString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		if raw, ok := v["raw"].(string); ok && raw != "" {
			return raw, nil
		}
		return "", errdef.New(errdef.CodeParse, "url object missing raw value")
	case nil:
		return "", errdef.New(errdef.CodeParse, "request has no url")
	default:
		return "", errdef.New(errdef.CodeParse, "unsupported url shape %T", value)
	}
}

func applyBody(req *restmodel.Request, body *Body) {
	switch body.Mode {
	case "raw":
		req.Body = body.Raw
		req.BodyType = restmodel.BodyJSON
	case "formdata":
		req.BodyType = restmodel.BodyFormData
		for _, item := range body.FormData {
			value := item.Value
			if item.Type == "file" && item.Src != "" {
				value = "@" + item.Src
			}
			req.FormData = append(req.FormData, restmodel.Row{
				Enabled: !item.Disabled,
				Key:     item.Key,
				Value:   value,
			})
		}
	case "urlencoded":
		req.BodyType = restmodel.BodyRaw
		pairs := make([]string, 0, len(body.URLEncoded))
		for _, item := range body.URLEncoded {
			if item.Disabled {
				continue
			}
			pairs = append(pairs, item.Key+"="+item.Value)
		}
		req.Body = strings.Join(pairs, "&")
		ensureHeader(req, "Content-Type", "application/x-www-form-urlencoded")
	}
}

func applyAuth(req *restmodel.Request, auth *Auth) {
	param := func(params []AuthParam, key string) string {
		for _, p := range params {
			if p.Key == key {
				if s, ok := p.Value.(string); ok {
					return s
				}
			}
		}
		return ""
	}

	switch auth.Type {
	case "basic":
		req.Auth = restmodel.AuthSpec{
			Type: restmodel.AuthBasic,
			Data: map[string]string{
				"username": param(auth.Basic, "username"),
				"password": param(auth.Basic, "password"),
			},
		}
	case "bearer":
		req.Auth = restmodel.AuthSpec{
			Type: restmodel.AuthBearer,
			Data: map[string]string{"token": param(auth.Bearer, "token")},
		}
	case "apikey":
		req.Auth = restmodel.AuthSpec{
			Type: restmodel.AuthAPIKey,
			Data: map[string]string{
				"key":   param(auth.APIKey, "key"),
				"value": param(auth.APIKey, "value"),
				"in":    param(auth.APIKey, "in"),
			},
		}
	}
}

func ensureHeader(req *restmodel.Request, name, value string) {
	for _, row := range req.Headers {
		if strings.EqualFold(row.Key, name) {
			return
		}
	}
	req.Headers = append(req.Headers, restmodel.Row{Enabled: true, Key: name, Value: value})
}
