package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DatasourceAdapterInfo describes a registered store adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "sqlite", "postgres"
	DisplayName string `json:"display_name"` // "SQLite", "PostgreSQL"
	Description string `json:"description"`
}

// StoreOptions carries settings shared by every adapter.
type StoreOptions struct {
	MaxResultRows int
	Logger        *zap.Logger
}

// StoreFactory opens a store from its adapter-specific config map.
type StoreFactory func(ctx context.Context, config map[string]any, opts StoreOptions) (Store, error)

// StoreRegistration contains info + factory for an adapter.
type StoreRegistration struct {
	Info    DatasourceAdapterInfo
	Factory StoreFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StoreRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg StoreRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

// Open creates a store of the given registered type.
func Open(ctx context.Context, dsType string, config map[string]any, opts StoreOptions) (Store, error) {
	registryMu.RLock()
	reg, ok := registry[dsType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported datastore type %q", dsType)
	}
	if opts.MaxResultRows <= 0 {
		opts.MaxResultRows = DefaultMaxResultRows
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return reg.Factory(ctx, config, opts)
}
