// Package instance names the running process in cron leases and logs.
package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/storefront-orders/pkg/env"
)

const fallbackID = "storefront-0"

// ID returns STOREFRONT_INSTANCE_ID, then the hostname, then a fixed default.
func ID() string {
	if id := strings.TrimSpace(env.Get("STOREFRONT_INSTANCE_ID", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
