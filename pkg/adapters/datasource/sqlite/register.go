package sqlite

import (
	"context"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.StoreRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        string(datasource.DialectSQLite),
			DisplayName: datasource.DialectSQLite.DisplayName(),
			Description: "Embedded SQLite file for local use and the demo dataset (pure Go driver)",
		},
		Factory: openStore,
	})
}

func openStore(ctx context.Context, options map[string]any, opts datasource.StoreOptions) (datasource.Store, error) {
	cfg, err := FromMap(options)
	if err != nil {
		return nil, err
	}
	return NewStore(ctx, cfg, opts)
}
