// Package identity names the running process for logs and traces.
package identity

import (
	"sync"

	"github.com/rs/xid"
)

var (
	serviceName = "unknown"
	instanceID  = xid.New().String()
	setOnce     sync.Once
)

// WhoAmI returns the service name and the id unique to this execution.
// The instance id is generated at start up and never changes.
func WhoAmI() (string, string) {
	return serviceName, instanceID
}

// SetServiceName sets the service name. Only the first call has any effect.
// Tests should rely on the default.
func SetServiceName(name string) {
	setOnce.Do(func() {
		serviceName = name
	})
}
