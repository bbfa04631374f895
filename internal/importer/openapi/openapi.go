package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

// Doc is the collection-ready result of importing an API description.
type Doc struct {
	Title    string
	Version  string
	BaseURL  string
	Requests []*restmodel.Request
}

const maxNameLen = 50

// Parse imports an OpenAPI 3.x or Swagger 2.0 document, given as JSON
// or YAML bytes, and synthesizes one request per operation.
func Parse(ctx context.Context, data []byte) (*Doc, error) {
	doc, err := loadDocument(ctx, data)
	if err != nil {
		return nil, err
	}

	out := &Doc{
		BaseURL: baseURL(doc.Servers),
	}
	if doc.Info != nil {
		out.Title = doc.Info.Title
		out.Version = doc.Info.Version
	}
	if out.Title == "" {
		out.Title = "Imported API"
	}

	out.Requests = collectRequests(doc, out.BaseURL)
	return out, nil
}

func loadDocument(ctx context.Context, data []byte) (*openapi3.T, error) {
	if isSwagger2(data) {
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			if yerr := yamlUnmarshalV2(data, &v2); yerr != nil {
				return nil, errdef.Wrap(errdef.CodeParse, err, "decode Swagger 2.0 document")
			}
		}
		doc, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "convert Swagger 2.0 document")
		}
		return doc, nil
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "load OpenAPI document")
	}
	if doc.OpenAPI == "" {
		return nil, errdef.New(errdef.CodeParse, "not an OpenAPI document")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "validate OpenAPI document")
	}
	return doc, nil
}

func isSwagger2(data []byte) bool {
	var probe struct {
		Swagger string `json:"swagger" yaml:"swagger"`
	}
	if json.Unmarshal(data, &probe) == nil && probe.Swagger != "" {
		return strings.HasPrefix(probe.Swagger, "2")
	}
	if yamlProbeSwagger(data, &probe) && probe.Swagger != "" {
		return strings.HasPrefix(probe.Swagger, "2")
	}
	return false
}

func collectRequests(doc *openapi3.T, base string) []*restmodel.Request {
	if doc.Paths == nil {
		return nil
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for path := range pathMap {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var requests []*restmodel.Request
	for _, path := range paths {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}

		methodOrder := []struct {
			method string
			op     *openapi3.Operation
		}{
			{"GET", item.Get},
			{"PUT", item.Put},
			{"POST", item.Post},
			{"DELETE", item.Delete},
			{"OPTIONS", item.Options},
			{"HEAD", item.Head},
			{"PATCH", item.Patch},
		}

		for _, entry := range methodOrder {
			if entry.op == nil {
				continue
			}
			req := buildRequest(base, path, entry.method, entry.op, item.Parameters)
			requests = append(requests, req)
		}
	}
	return requests
}

func buildRequest(
	base string,
	path string,
	method string,
	op *openapi3.Operation,
	baseParams openapi3.Parameters,
) *restmodel.Request {
	req := restmodel.NewRequest()
	req.Method = method
	req.URL = joinURL(base, path)
	req.Name = operationName(method, path, op)
	req.Headers = nil
	req.Params = nil
	req.BodyType = restmodel.BodyNone

	for _, param := range mergeParameters(baseParams, op.Parameters) {
		row := restmodel.Row{
			Enabled: param.Required,
			Key:     param.Name,
			Value:   param.Example,
		}
		switch param.In {
		case openapi3.ParameterInQuery:
			req.Params = append(req.Params, row)
		case openapi3.ParameterInHeader:
			// auth headers come from the auth config, not the document
			if strings.EqualFold(param.Name, "Authorization") {
				continue
			}
			row.Enabled = true
			req.Headers = append(req.Headers, row)
		case openapi3.ParameterInPath:
			row.Enabled = true
			req.Params = append(req.Params, row)
		}
	}

	applyRequestBody(req, op.RequestBody)
	return req
}

func operationName(method, path string, op *openapi3.Operation) string {
	name := strings.TrimSpace(op.Summary)
	if name == "" {
		name = strings.TrimSpace(op.OperationID)
	}
	if name == "" {
		name = method + " " + path
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func baseURL(servers openapi3.Servers) string {
	for _, srv := range servers {
		if srv == nil || srv.URL == "" {
			continue
		}
		return resolveServerURL(srv)
	}
	return ""
}

func resolveServerURL(server *openapi3.Server) string {
	if len(server.Variables) == 0 {
		return server.URL
	}
	resolved := server.URL
	for name, variable := range server.Variables {
		replacement := variable.Default
		if replacement == "" && len(variable.Enum) > 0 {
			replacement = variable.Enum[0]
		}
		placeholder := fmt.Sprintf("{%s}", name)
		resolved = strings.ReplaceAll(resolved, placeholder, replacement)
	}
	return resolved
}

type parameter struct {
	Name     string
	In       string
	Required bool
	Example  string
}

func mergeParameters(baseParams, opParams openapi3.Parameters) []parameter {
	combined := make(map[string]parameter)

	addParam := func(ref *openapi3.ParameterRef) {
		if ref == nil || ref.Value == nil {
			return
		}
		p := ref.Value
		key := p.In + ":" + p.Name
		combined[key] = parameter{
			Name:     p.Name,
			In:       p.In,
			Required: p.Required,
			Example:  parameterExample(p),
		}
	}

	for _, ref := range baseParams {
		addParam(ref)
	}
	for _, ref := range opParams {
		addParam(ref)
	}

	if len(combined) == 0 {
		return nil
	}

	keys := make([]string, 0, len(combined))
	for key := range combined {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	params := make([]parameter, 0, len(keys))
	for _, key := range keys {
		params = append(params, combined[key])
	}
	return params
}

func parameterExample(p *openapi3.Parameter) string {
	if p.Example != nil {
		return exampleString(p.Example)
	}
	for _, exRef := range p.Examples {
		if exRef != nil && exRef.Value != nil && exRef.Value.Value != nil {
			return exampleString(exRef.Value.Value)
		}
	}
	if value, ok := schemaExample(p.Schema); ok {
		return exampleString(value)
	}
	return ""
}

// schemaExample picks a sample value in priority order: explicit
// example, declared default, first enum member.
func schemaExample(ref *openapi3.SchemaRef) (interface{}, bool) {
	if ref == nil || ref.Value == nil {
		return nil, false
	}
	schema := ref.Value
	if schema.Example != nil {
		return schema.Example, true
	}
	if schema.Default != nil {
		return schema.Default, true
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0], true
	}
	return nil, false
}

func exampleString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func applyRequestBody(req *restmodel.Request, ref *openapi3.RequestBodyRef) {
	if ref == nil || ref.Value == nil || len(ref.Value.Content) == 0 {
		return
	}

	content := ref.Value.Content
	mediaType, mt := pickMediaType(content)
	if mt == nil {
		return
	}

	switch {
	case strings.Contains(mediaType, "json"):
		req.BodyType = restmodel.BodyJSON
		req.Body = mediaTypeBody(mt)
		setHeader(req, "Content-Type", mediaType)
	case mediaType == "multipart/form-data" || mediaType == "application/x-www-form-urlencoded":
		req.BodyType = restmodel.BodyFormData
		req.FormData = formRows(mt.Schema)
	default:
		req.BodyType = restmodel.BodyRaw
		req.Body = mediaTypeBody(mt)
		setHeader(req, "Content-Type", mediaType)
	}
}

// pickMediaType prefers JSON content, then form encodings, then
// whatever sorts first.
func pickMediaType(content openapi3.Content) (string, *openapi3.MediaType) {
	preferred := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}
	for _, name := range preferred {
		if mt := content[name]; mt != nil {
			return name, mt
		}
	}
	names := make([]string, 0, len(content))
	for name := range content {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(name, "json") && content[name] != nil {
			return name, content[name]
		}
	}
	for _, name := range names {
		if content[name] != nil {
			return name, content[name]
		}
	}
	return "", nil
}

func mediaTypeBody(mt *openapi3.MediaType) string {
	if mt.Example != nil {
		return prettyJSON(mt.Example)
	}
	for _, ref := range mt.Examples {
		if ref != nil && ref.Value != nil && ref.Value.Value != nil {
			return prettyJSON(ref.Value.Value)
		}
	}
	if value, ok := schemaExample(mt.Schema); ok {
		return prettyJSON(value)
	}
	if sample := sampleFromSchema(mt.Schema, 0); sample != nil {
		return prettyJSON(sample)
	}
	return ""
}

// sampleFromSchema synthesizes a placeholder value from the schema
// shape when no example is declared. Recursion is depth-limited to
// keep self-referential schemas from looping.
func sampleFromSchema(ref *openapi3.SchemaRef, depth int) interface{} {
	if ref == nil || ref.Value == nil || depth > 4 {
		return nil
	}
	if value, ok := schemaExample(ref); ok {
		return value
	}
	schema := ref.Value

	switch {
	case schema.Type.Is(openapi3.TypeObject) || len(schema.Properties) > 0:
		obj := make(map[string]interface{}, len(schema.Properties))
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			obj[name] = sampleFromSchema(schema.Properties[name], depth+1)
		}
		return obj
	case schema.Type.Is(openapi3.TypeArray):
		item := sampleFromSchema(schema.Items, depth+1)
		if item == nil {
			return []interface{}{}
		}
		return []interface{}{item}
	case schema.Type.Is(openapi3.TypeString):
		return "string"
	case schema.Type.Is(openapi3.TypeInteger):
		return 0
	case schema.Type.Is(openapi3.TypeNumber):
		return 0
	case schema.Type.Is(openapi3.TypeBoolean):
		return false
	default:
		return nil
	}
}

func formRows(ref *openapi3.SchemaRef) []restmodel.Row {
	if ref == nil || ref.Value == nil || len(ref.Value.Properties) == 0 {
		return nil
	}
	schema := ref.Value

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]restmodel.Row, 0, len(names))
	for _, name := range names {
		value := ""
		if sample, ok := schemaExample(schema.Properties[name]); ok {
			value = exampleString(sample)
		}
		rows = append(rows, restmodel.Row{
			Enabled: required[name] || len(schema.Required) == 0,
			Key:     name,
			Value:   value,
		})
	}
	return rows
}

func setHeader(req *restmodel.Request, name, value string) {
	for i, row := range req.Headers {
		if strings.EqualFold(row.Key, name) {
			req.Headers[i].Value = value
			req.Headers[i].Enabled = true
			return
		}
	}
	req.Headers = append(req.Headers, restmodel.Row{Enabled: true, Key: name, Value: value})
}
