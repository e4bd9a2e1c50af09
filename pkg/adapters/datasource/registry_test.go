package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
)

// fakeStore records calls and returns canned rows.
type fakeStore struct {
	lastSQL    string
	lastParams []any
	rows       []map[string]any
}

func (f *fakeStore) Query(_ context.Context, sqlText string, params ...any) ([]map[string]any, error) {
	f.lastSQL, f.lastParams = sqlText, params
	return f.rows, nil
}

func (f *fakeStore) QueryReadOnly(ctx context.Context, sqlText string) ([]map[string]any, error) {
	return f.Query(ctx, sqlText)
}

func (f *fakeStore) Run(_ context.Context, sqlText string, params ...any) (RunResult, error) {
	f.lastSQL, f.lastParams = sqlText, params
	return RunResult{RowsAffected: 1}, nil
}

func (f *fakeStore) GetSchema(context.Context) (string, error) { return "CREATE TABLE t (id INTEGER)", nil }
func (f *fakeStore) GetSampleData(context.Context, int) ([]TableSample, error) {
	return []TableSample{{Table: "t"}}, nil
}
func (f *fakeStore) Dialect() Dialect           { return DialectSQLite }
func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func TestRegistry_OpenAppliesDefaults(t *testing.T) {
	var got StoreOptions
	Register(StoreRegistration{
		Info: DatasourceAdapterInfo{Type: "fake-defaults", DisplayName: "Fake"},
		Factory: func(_ context.Context, _ map[string]any, opts StoreOptions) (Store, error) {
			got = opts
			return &fakeStore{}, nil
		},
	})

	assert.True(t, IsRegistered("fake-defaults"))

	store, err := Open(context.Background(), "fake-defaults", nil, StoreOptions{})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, DefaultMaxResultRows, got.MaxResultRows)
	assert.NotNil(t, got.Logger)

	var types []string
	for _, info := range RegisteredAdapters() {
		types = append(types, info.Type)
	}
	assert.Contains(t, types, "fake-defaults")
}

func TestRegistry_OpenUnknownType(t *testing.T) {
	_, err := Open(context.Background(), "oracle-db", nil, StoreOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported datastore type")
	assert.False(t, IsRegistered("oracle-db"))
}

func TestWithParameterScreening_AuditsButDoesNotBlock(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	auditor := audit.NewSecurityAuditor(zap.New(core))

	inner := &fakeStore{rows: []map[string]any{{"id": int64(1)}}}
	store := WithParameterScreening(inner, auditor)

	rows, err := store.Query(context.Background(), "SELECT id FROM t WHERE name = ?", "' OR '1'='1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "' OR '1'='1", inner.lastParams[0])

	logs := recorded.FilterMessage("SQL injection attempt detected").All()
	require.Len(t, logs, 1)
	assert.Equal(t, "$1", logs[0].ContextMap()["param_name"])
}

func TestWithParameterScreening_CleanParams(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	store := WithParameterScreening(&fakeStore{}, audit.NewSecurityAuditor(zap.New(core)))

	_, err := store.Run(context.Background(), "UPDATE t SET status = ? WHERE id = ?", "resolved", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, recorded.Len())
}

func TestWithParameterScreening_NilAuditor(t *testing.T) {
	inner := &fakeStore{}
	assert.Same(t, Store(inner), WithParameterScreening(inner, nil))
}
