package platform

import (
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"autopilot/internal/config"
)

// FromConfig builds the adapter router. In http mode every configured endpoint gets its own
// HTTPAdapter and unknown platforms fail; otherwise everything goes to a DryRun adapter.
func FromConfig(cfg config.PlatformsConfig, logger *zap.Logger) *Router {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode != "http" {
		return NewRouter(&DryRun{Logger: logger})
	}
	client := &http.Client{Timeout: cfg.Timeout}
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	r := NewRouter(nil)
	for name, endpoint := range cfg.Endpoints {
		r.Register(name, &HTTPAdapter{Endpoint: endpoint, APIKey: apiKey, HTTP: client})
	}
	if logger != nil {
		logger.Info("platform: http adapters", zap.Strings("platforms", r.Platforms()))
	}
	return r
}
