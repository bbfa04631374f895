package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "REQDECK_OTLP_ENDPOINT"
	envInsecure    = "REQDECK_OTLP_INSECURE"
	envService     = "REQDECK_OTLP_SERVICE"
	envDialTimeout = "REQDECK_OTLP_DIAL_TIMEOUT"
	envHeaders     = "REQDECK_OTLP_HEADERS"

	defaultServiceName = "reqdeck"
)

type Config struct {
	ServiceName string
	Version     string
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	DialTimeout time.Duration
}

// Enabled reports whether an exporter endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv builds a Config from the process environment. getenv
// is injectable for tests.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		ServiceName: defaultServiceName,
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
	}
	if service := strings.TrimSpace(getenv(envService)); service != "" {
		cfg.ServiceName = service
	}
	if insecure := strings.TrimSpace(getenv(envInsecure)); insecure != "" {
		if parsed, err := strconv.ParseBool(insecure); err == nil {
			cfg.Insecure = parsed
		}
	}
	if timeout := strings.TrimSpace(getenv(envDialTimeout)); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.DialTimeout = parsed
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders decodes a "k=v, k2=v2" list into a map.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, chunk := range strings.Split(raw, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		key, value, found := strings.Cut(chunk, "=")
		if !found {
			return nil, fmt.Errorf("invalid header entry %q", chunk)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid header entry %q", chunk)
		}
		headers[key] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
