package kv

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner interprets the fixed queries issued by the Neo4j backend.
type fakeRunner struct {
	mu      sync.Mutex
	tables  map[string]bool
	docs    map[string]map[string]string
	queries []string
	fail    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		tables: make(map[string]bool),
		docs:   make(map[string]map[string]string),
	}
}

func record(key string, value any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{key}, Values: []any{value}}
}

func (f *fakeRunner) Run(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.fail != nil {
		return nil, f.fail
	}

	table, _ := params["table"].(string)
	id, _ := params["id"].(string)
	result := &neo4j.EagerResult{}

	switch query {
	case cypherCreateTable:
		f.tables[table] = true
	case cypherTableExists:
		var n int64
		if f.tables[table] {
			n = 1
		}
		result.Records = append(result.Records, record("n", n))
	case cypherGetItem:
		if doc, ok := f.docs[table][id]; ok {
			result.Records = append(result.Records, record("doc", doc))
		}
	case cypherScanItems:
		ids := make([]string, 0, len(f.docs[table]))
		for id := range f.docs[table] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			result.Records = append(result.Records, record("doc", f.docs[table][id]))
		}
	case cypherPutItem:
		f.tables[table] = true
		if f.docs[table] == nil {
			f.docs[table] = make(map[string]string)
		}
		f.docs[table][id] = params["doc"].(string)
	default:
		return nil, errors.New("unexpected query")
	}
	return result, nil
}

func TestNeo4j_Contract(t *testing.T) {
	runContract(t, NewNeo4jWithRunner(newFakeRunner()))
}

func TestNeo4j_DriverError(t *testing.T) {
	runner := newFakeRunner()
	runner.fail = errors.New("connection refused")
	n := NewNeo4jWithRunner(runner)

	resp, err := n.Run(context.Background(), ScanRequest("nodes"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "connection refused")
}

func TestNeo4j_PutIsSingleQuery(t *testing.T) {
	runner := newFakeRunner()
	n := NewNeo4jWithRunner(runner)

	resp, err := n.Run(context.Background(), PutRequest("nodes", map[string]any{"id": "a"}))
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, []string{cypherPutItem}, runner.queries)
}
