package instance

import (
	"os"

	"github.com/seahsky/joho-erp-sub004/pkg/env"
)

// GetID returns the worker instance identifier: JOHO_WORKER_ID, then the
// hostname, then a fixed default.
func GetID() string {
	if id := env.Get("JOHO_WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
