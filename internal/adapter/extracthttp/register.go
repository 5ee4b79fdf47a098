package extracthttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
	"github.com/semaj-12/7M-Quote-sub001/internal/port/provider"
)

// Sidecar names known to ship with the deployment. Each registers a factory
// keyed by provider name; the service instantiates only the providers the
// ensemble config references.
var sidecars = []string{"reducto", "textract", "donut", "layoutlmv3"}

func init() {
	for _, name := range sidecars {
		name := name
		provider.Register(name, func(config map[string]string) (provider.Invoker, error) {
			return fromConfig(name, config)
		})
	}
}

// fromConfig builds a Client from the adapter config map. Required keys:
// base_url. Optional: api_key, types (comma-separated), timeout (duration).
func fromConfig(name string, config map[string]string) (provider.Invoker, error) {
	baseURL := config["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("extracthttp: %s requires base_url", name)
	}

	caps := provider.Capabilities{Types: entity.Types}
	if raw := config["types"]; raw != "" {
		caps.Types = nil
		for _, part := range strings.Split(raw, ",") {
			et := entity.Type(strings.ToUpper(strings.TrimSpace(part)))
			if !et.Valid() {
				return nil, fmt.Errorf("extracthttp: %s: %w: %q", name, entity.ErrInvalidType, part)
			}
			caps.Types = append(caps.Types, et)
		}
	}

	var timeout time.Duration
	if raw := config["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("extracthttp: %s: invalid timeout %q: %w", name, raw, err)
		}
		timeout = d
	}

	return NewClient(name, baseURL, config["api_key"], caps, timeout), nil
}
