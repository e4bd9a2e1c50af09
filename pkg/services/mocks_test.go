package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
)

// mockStore is a datasource.Store whose query results are scripted.
type mockStore struct {
	mu      sync.Mutex
	queries []string

	queryFunc  func(sqlText string) ([]map[string]any, error)
	schema     string
	schemaErr  error
	samples    []datasource.TableSample
	samplesErr error
}

var _ datasource.Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{
		schema: "CREATE TABLE deals (id INTEGER PRIMARY KEY, revenue REAL, year INTEGER)",
		samples: []datasource.TableSample{
			{Table: "deals", Rows: []map[string]any{{"id": int64(1), "revenue": 5000000.0, "year": int64(2024)}}},
		},
	}
}

// Query is never used for generated SQL; only QueryReadOnly records it.
func (m *mockStore) Query(context.Context, string, ...any) ([]map[string]any, error) {
	return nil, errors.New("mockStore: generated SQL must run through QueryReadOnly")
}

func (m *mockStore) QueryReadOnly(_ context.Context, sqlText string) ([]map[string]any, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sqlText)
	m.mu.Unlock()
	if m.queryFunc != nil {
		return m.queryFunc(sqlText)
	}
	return []map[string]any{}, nil
}

func (m *mockStore) Run(context.Context, string, ...any) (datasource.RunResult, error) {
	return datasource.RunResult{}, errors.New("mockStore: Run not supported")
}

func (m *mockStore) GetSchema(context.Context) (string, error) { return m.schema, m.schemaErr }

func (m *mockStore) GetSampleData(context.Context, int) ([]datasource.TableSample, error) {
	return m.samples, m.samplesErr
}

func (m *mockStore) Dialect() datasource.Dialect { return datasource.DialectSQLite }

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

func (m *mockStore) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// stageResponses scripts the oracle per pipeline stage.
type stageResponses struct {
	scope, generate, confidence, format string
	errs                                map[string]error
}

func scriptedOracle(r stageResponses) *llm.MockOracle {
	oracle := llm.NewMockOracle()
	oracle.CompleteFunc = func(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
		stage := llm.StageFromContext(ctx)
		if err := r.errs[stage]; err != nil {
			return "", err
		}
		switch stage {
		case llm.StageScope:
			return r.scope, nil
		case llm.StageGenerate:
			return r.generate, nil
		case llm.StageConfidence:
			return r.confidence, nil
		case llm.StageFormat:
			return r.format, nil
		}
		return "", errors.New("unexpected stage " + stage)
	}
	return oracle
}

func stagesOf(calls []llm.MockCompletionCall) []string {
	stages := make([]string, len(calls))
	for i, c := range calls {
		stages[i] = c.Stage
	}
	return stages
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
