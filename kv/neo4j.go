package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherRunner executes a Cypher query and returns a fully-buffered result.
// It is the seam tests use to replace the driver.
type CypherRunner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Neo4jOptions configures the Neo4j connection.
type Neo4jOptions struct {
	// URI is the connection URI (e.g., "neo4j://localhost:7687").
	URI      string
	Username string
	Password string

	// Database is the target database name. Default: "neo4j"
	Database string
}

// neo4jExecutor runs queries through the official driver using ExecuteQuery,
// which manages sessions and transactions.
type neo4jExecutor struct {
	driver neo4j.DriverWithContext
	dbName string
}

func (e *neo4jExecutor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.dbName),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result, nil
}

const (
	cypherCreateTable = `MERGE (t:DesignerTable {name: $table})`
	cypherTableExists = `MATCH (t:DesignerTable {name: $table}) RETURN count(t) AS n`
	cypherGetItem     = `MATCH (i:DesignerItem {table: $table, id: $id}) RETURN i.doc AS doc`
	cypherScanItems   = `MATCH (i:DesignerItem {table: $table}) RETURN i.doc AS doc ORDER BY i.id`
	cypherPutItem     = `MERGE (t:DesignerTable {name: $table})
MERGE (i:DesignerItem {table: $table, id: $id})
SET i.doc = $doc`
)

// Neo4j is a Backend that stores each item as a (:DesignerItem) node holding
// the JSON document in its doc property.
type Neo4j struct {
	runner CypherRunner
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a driver and verifies connectivity.
func NewNeo4j(ctx context.Context, opts Neo4jOptions) (*Neo4j, error) {
	if opts.Database == "" {
		opts.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}

	return &Neo4j{
		runner: &neo4jExecutor{driver: driver, dbName: opts.Database},
		driver: driver,
	}, nil
}

// NewNeo4jWithRunner builds a backend over an existing runner.
func NewNeo4jWithRunner(runner CypherRunner) *Neo4j {
	return &Neo4j{runner: runner}
}

// Run executes req against Neo4j.
func (n *Neo4j) Run(ctx context.Context, req Request) (*Response, error) {
	return dispatch(ctx, n, req)
}

// CreateTable merges the table marker node.
func (n *Neo4j) CreateTable(ctx context.Context, table string) error {
	if _, err := n.runner.Run(ctx, cypherCreateTable, map[string]any{"table": table}); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Close closes the driver.
func (n *Neo4j) Close() error {
	if n.driver == nil {
		return nil
	}
	return n.driver.Close(context.Background())
}

func (n *Neo4j) ensureTable(ctx context.Context, table string) error {
	result, err := n.runner.Run(ctx, cypherTableExists, map[string]any{"table": table})
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if len(result.Records) == 0 {
		return ErrTableNotFound
	}
	count, _ := result.Records[0].Get("n")
	if c, ok := count.(int64); !ok || c == 0 {
		return ErrTableNotFound
	}
	return nil
}

func (n *Neo4j) get(ctx context.Context, table, id string) (map[string]any, error) {
	if err := n.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	result, err := n.runner.Run(ctx, cypherGetItem, map[string]any{"table": table, "id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from %s: %w", id, table, err)
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	if len(result.Records) > 1 {
		return nil, fmt.Errorf("expected 1 record for %s but found %d", id, len(result.Records))
	}
	return docFromRecord(result.Records[0])
}

func (n *Neo4j) scan(ctx context.Context, table string) ([]map[string]any, error) {
	if err := n.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	result, err := n.runner.Run(ctx, cypherScanItems, map[string]any{"table": table})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	items := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		item, err := docFromRecord(record)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (n *Neo4j) put(ctx context.Context, table, id string, item map[string]any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", id, err)
	}
	params := map[string]any{"table": table, "id": id, "doc": string(data)}
	if _, err := n.runner.Run(ctx, cypherPutItem, params); err != nil {
		return fmt.Errorf("failed to put %s into %s: %w", id, table, err)
	}
	return nil
}

func docFromRecord(record *neo4j.Record) (map[string]any, error) {
	value, ok := record.Get("doc")
	if !ok {
		return nil, fmt.Errorf("could not find return value 'doc' in query result")
	}
	doc, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("return value 'doc' is not a string")
	}
	return decodeItem([]byte(doc))
}
