package openapi

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/getkin/kin-openapi/openapi2"
)

func yamlProbeSwagger(data []byte, probe interface{}) bool {
	return yaml.Unmarshal(data, probe) == nil
}

// yamlUnmarshalV2 decodes a YAML Swagger 2.0 document by normalizing
// it to JSON first, since the openapi2 types carry json tags only.
func yamlUnmarshalV2(data []byte, dst *openapi2.T) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	jsonData, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, dst)
}

// normalizeYAML rewrites map[interface{}]interface{} keys to strings
// so the tree can round-trip through encoding/json.
func normalizeYAML(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[fmt.Sprintf("%v", key)] = normalizeYAML(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

func prettyJSON(value interface{}) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
