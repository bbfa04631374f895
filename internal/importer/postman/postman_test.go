package postman

import (
	"strings"
	"testing"

	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

const sampleCollection = `{
  "info": {
    "name": "User API",
    "schema": "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"
  },
  "item": [
    {
      "name": "List users",
      "request": {
        "method": "GET",
        "header": [{"key": "Accept", "value": "application/json"}],
        "url": "https://api.example.com/users?page=1"
      }
    },
    {
      "name": "Admin",
      "item": [
        {
          "name": "Create user",
          "request": {
            "method": "POST",
            "header": [],
            "body": {"mode": "raw", "raw": "{\"name\":\"ada\"}"},
            "auth": {
              "type": "bearer",
              "bearer": [{"key": "token", "value": "secret-token"}]
            },
            "url": {"raw": "https://api.example.com/users", "host": ["api","example","com"], "path": ["users"]}
          }
        }
      ]
    }
  ]
}`

func TestParseCollection(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte(sampleCollection))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tree.Name != "User API" {
		t.Fatalf("unexpected name %q", tree.Name)
	}
	if len(tree.Requests) != 1 || len(tree.Children) != 1 {
		t.Fatalf("unexpected tree shape: %d requests, %d folders", len(tree.Requests), len(tree.Children))
	}

	list := tree.Requests[0]
	if list.Method != "GET" || list.URL != "https://api.example.com/users?page=1" {
		t.Fatalf("unexpected request %s %s", list.Method, list.URL)
	}
	if len(list.Params) == 0 || list.Params[0].Key != "page" {
		t.Fatalf("query params not derived from url: %+v", list.Params)
	}

	folder := tree.Children[0]
	if folder.Name != "Admin" || len(folder.Requests) != 1 {
		t.Fatalf("unexpected folder %q with %d requests", folder.Name, len(folder.Requests))
	}

	create := folder.Requests[0]
	if create.URL != "https://api.example.com/users" {
		t.Fatalf("url object not unwrapped: %q", create.URL)
	}
	if create.BodyType != restmodel.BodyJSON {
		t.Fatalf("raw json body should import as json, got %s", create.BodyType)
	}
	if create.Auth.Type != restmodel.AuthBearer || create.Auth.Param("token") != "secret-token" {
		t.Fatalf("bearer auth lost: %+v", create.Auth)
	}
	found := false
	for _, row := range create.Headers {
		if row.Key == "Content-Type" && row.Value == "application/json" {
			found = true
		}
	}
	if !found {
		t.Fatalf("json content type not injected: %+v", create.Headers)
	}
}

func TestParseFormDataBody(t *testing.T) {
	t.Parallel()

	data := `{
  "info": {"name": "Uploads"},
  "item": [
    {
      "name": "Upload",
      "request": {
        "method": "POST",
        "body": {
          "mode": "formdata",
          "formdata": [
            {"key": "file", "src": "report.pdf", "type": "file"},
            {"key": "note", "value": "numbers", "type": "text"},
            {"key": "off", "value": "x", "disabled": true}
          ]
        },
        "url": "https://api.example.com/upload"
      }
    }
  ]
}`
	tree, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req := tree.Requests[0]
	if req.BodyType != restmodel.BodyFormData || len(req.FormData) != 3 {
		t.Fatalf("unexpected body %s %+v", req.BodyType, req.FormData)
	}
	if req.FormData[0].Value != "@report.pdf" {
		t.Fatalf("file src not mapped: %+v", req.FormData[0])
	}
	if req.FormData[2].Enabled {
		t.Fatalf("disabled row should stay disabled")
	}
}

func TestParseURLEncodedBody(t *testing.T) {
	t.Parallel()

	data := `{
  "info": {"name": "Login"},
  "item": [
    {
      "name": "Sign in",
      "request": {
        "method": "POST",
        "body": {
          "mode": "urlencoded",
          "urlencoded": [
            {"key": "user", "value": "ada"},
            {"key": "pass", "value": "pw"}
          ]
        },
        "url": "https://api.example.com/login"
      }
    }
  ]
}`
	tree, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req := tree.Requests[0]
	if req.Body != "user=ada&pass=pw" {
		t.Fatalf("unexpected body %q", req.Body)
	}
	if !strings.Contains(headerValue(req, "Content-Type"), "urlencoded") {
		t.Fatalf("urlencoded content type missing: %+v", req.Headers)
	}
}

func TestParseAllOrNothing(t *testing.T) {
	t.Parallel()

	data := `{
  "info": {"name": "Broken"},
  "item": [
    {
      "name": "Fine",
      "request": {"method": "GET", "url": "https://example.com"}
    },
    {
      "name": "Bad",
      "request": {"method": "GET", "url": {"host": ["example","com"]}}
    }
  ]
}`
	if _, err := Parse([]byte(data)); err == nil {
		t.Fatalf("one bad item should fail the whole import")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Parse([]byte(`{"foo": 1}`)); err == nil {
		t.Fatalf("expected not-a-collection error")
	}
}

func headerValue(req *restmodel.Request, name string) string {
	for _, row := range req.Headers {
		if strings.EqualFold(row.Key, name) {
			return row.Value
		}
	}
	return ""
}
