package fs

import (
	"context"
	"fmt"
	"sync"

	"github.com/driveback/driveback/fs/config/configmap"
)

// RegInfo provides information about a backend registered with Register
type RegInfo struct {
	// Name of this backend
	Name string
	// Description of this fs, defaults to Name
	Description string
	// NewFs constructs an Fs from the path and config
	NewFs func(ctx context.Context, name string, root string, config configmap.Mapper) (Fs, error)
}

var (
	registryMu sync.Mutex
	registry   = map[string]*RegInfo{}
)

// Register a backend
//
// Fs modules should use this in an init() function
func Register(info *RegInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, found := registry[info.Name]; found {
		panic(fmt.Sprintf("backend %q already registered", info.Name))
	}
	registry[info.Name] = info
}

// Find looks for a RegInfo object registered under the Name passed in.
func Find(name string) (*RegInfo, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	info, found := registry[name]
	if !found {
		return nil, fmt.Errorf("didn't find backend called %q", name)
	}
	return info, nil
}
