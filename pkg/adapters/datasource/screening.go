package datasource

import (
	"context"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
	sqlpkg "github.com/dealdesk-inc/dealdesk-engine/pkg/sql"
)

// screenedStore runs libinjection over bound parameters before delegating.
// Detections are audited, never blocked: parameters are bound by the driver,
// so a flagged value can only ever be compared as data.
type screenedStore struct {
	Store
	auditor *audit.SecurityAuditor
}

// WithParameterScreening wraps store so string parameters passed to Query and
// Run are checked for SQL injection patterns.
func WithParameterScreening(store Store, auditor *audit.SecurityAuditor) Store {
	if auditor == nil {
		return store
	}
	return &screenedStore{Store: store, auditor: auditor}
}

func (s *screenedStore) Query(ctx context.Context, sqlText string, params ...any) ([]map[string]any, error) {
	s.screen(ctx, params)
	return s.Store.Query(ctx, sqlText, params...)
}

func (s *screenedStore) Run(ctx context.Context, sqlText string, params ...any) (RunResult, error) {
	s.screen(ctx, params)
	return s.Store.Run(ctx, sqlText, params...)
}

func (s *screenedStore) screen(ctx context.Context, params []any) {
	for _, hit := range sqlpkg.CheckAllParameters(params) {
		s.auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
			ParamName:   hit.ParamName(),
			ParamValue:  hit.Value,
			Fingerprint: hit.Fingerprint,
		})
	}
}
