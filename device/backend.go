package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]driver.Driver)
)

// Register makes a driver available under name. Passing nil removes it.
func Register(name string, d driver.Driver) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if d == nil {
		delete(backends, name)
		return
	}

	backends[name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (driver.Driver, error) {
	backendsMu.RLock()
	d := backends[name]
	backendsMu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoBackend, name)
	}

	return d, nil
}

// Backends returns the sorted names of all registered drivers.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
