package postgres

import (
	"context"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        string(datasource.DialectPostgres),
			DisplayName: datasource.DialectPostgres.DisplayName(),
			Description: "Shared PostgreSQL 12+ datastore; tables in the configured schema are exposed to question answering",
		},
		Factory: openStore,
	})
}

// openStore adapts NewStore to datasource.StoreFactory.
func openStore(ctx context.Context, options map[string]any, opts datasource.StoreOptions) (datasource.Store, error) {
	cfg, err := FromMap(options)
	if err != nil {
		return nil, err
	}
	return NewStore(ctx, cfg, opts)
}
