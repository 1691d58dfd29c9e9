package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/captify-io/designer/field"
)

// Operations understood by every backend.
const (
	OpGet  = "get"
	OpScan = "scan"
	OpPut  = "put"
)

// DefaultService is the service name sent with every request unless the
// caller overrides it.
const DefaultService = "platform.dynamodb"

var (
	// ErrTableNotFound is returned by table stores when the requested table
	// has never been created. Backends report it to callers as an
	// unsuccessful Response whose Error contains ResourceNotFoundException.
	ErrTableNotFound = errors.New("table not found")

	// ErrUnsupportedOperation is reported for operations other than get, scan and put.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMissingKey is reported when a get or put request carries no item id.
	ErrMissingKey = errors.New("missing item id")
)

// Session identifies the user on whose behalf requests are made.
// The token is forwarded verbatim and never inspected.
type Session struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token,omitempty"`
}

// Request is one call to the key-value service.
//
// Data carries the operation payload:
//
//	get:  {"key": {"id": "..."}}
//	put:  {"item": {"id": "...", ...}}
//	scan: nil
type Request struct {
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Table     string         `json:"table"`
	Data      map[string]any `json:"data,omitempty"`
	Session   *Session       `json:"session,omitempty"`
}

// Response is the result of a Request.
//
// A get returns the item itself (nil when absent); a scan returns
// {"Items": [...], "Count": n}.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Backend executes key-value requests.
//
// Run returns an error only when the request could not be carried out at
// all (transport failure, cancelled context). Failures reported by the
// store itself come back as a Response with Success false.
type Backend interface {
	Run(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// TableCreator is implemented by backends that can create tables on demand.
type TableCreator interface {
	CreateTable(ctx context.Context, table string) error
}

// tableStore is the storage primitive shared by the local backends.
// Implementations return ErrTableNotFound for unknown tables.
type tableStore interface {
	get(ctx context.Context, table, id string) (map[string]any, error)
	scan(ctx context.Context, table string) ([]map[string]any, error)
	put(ctx context.Context, table, id string, item map[string]any) error
}

// dispatch decodes req, runs it against ts and encodes the outcome.
func dispatch(ctx context.Context, ts tableStore, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Table == "" {
		return Failure(errors.New("table is required")), nil
	}

	switch req.Operation {
	case OpGet:
		id := KeyID(req.Data)
		if id == "" {
			return Failure(ErrMissingKey), nil
		}
		item, err := ts.get(ctx, req.Table, id)
		if err != nil {
			return storeFailure(req.Table, err)
		}
		if item == nil {
			return &Response{Success: true}, nil
		}
		return &Response{Success: true, Data: item}, nil

	case OpScan:
		items, err := ts.scan(ctx, req.Table)
		if err != nil {
			return storeFailure(req.Table, err)
		}
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = item
		}
		return &Response{Success: true, Data: map[string]any{"Items": list, "Count": len(list)}}, nil

	case OpPut:
		item := ItemOf(req.Data)
		id := field.String(item, "id", "")
		if id == "" {
			return Failure(ErrMissingKey), nil
		}
		if err := ts.put(ctx, req.Table, id, item); err != nil {
			return storeFailure(req.Table, err)
		}
		return &Response{Success: true}, nil

	default:
		return Failure(fmt.Errorf("%w: %q", ErrUnsupportedOperation, req.Operation)), nil
	}
}

// storeFailure maps a table store error onto a Response. Missing tables use
// the DynamoDB wording so callers can recognize them by message.
func storeFailure(table string, err error) (*Response, error) {
	if errors.Is(err, ErrTableNotFound) {
		return &Response{
			Success: false,
			Error:   fmt.Sprintf("ResourceNotFoundException: Requested resource not found: table %s not found", table),
		}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return Failure(err), nil
}

// Failure builds an unsuccessful Response carrying err's message.
func Failure(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

// KeyID extracts the item id from a get payload. Both "key" and "Key" are
// accepted.
func KeyID(data map[string]any) string {
	for _, k := range []string{"key", "Key"} {
		if id := field.String(field.Map(data, k), "id", ""); id != "" {
			return id
		}
	}
	return ""
}

// ItemOf extracts the item from a put payload. Both "item" and "Item" are
// accepted.
func ItemOf(data map[string]any) map[string]any {
	for _, k := range []string{"item", "Item"} {
		if item := field.Map(data, k); item != nil {
			return item
		}
	}
	return nil
}

// GetRequest builds a get request for id.
func GetRequest(table, id string) Request {
	return Request{
		Service:   DefaultService,
		Operation: OpGet,
		Table:     table,
		Data:      map[string]any{"key": map[string]any{"id": id}},
	}
}

// ScanRequest builds a full-table scan request.
func ScanRequest(table string) Request {
	return Request{Service: DefaultService, Operation: OpScan, Table: table}
}

// PutRequest builds an upsert request for item.
func PutRequest(table string, item map[string]any) Request {
	return Request{
		Service:   DefaultService,
		Operation: OpPut,
		Table:     table,
		Data:      map[string]any{"item": item},
	}
}

// Items extracts the item list from a scan response. Both the
// {"Items": [...]} envelope and a bare list are accepted; entries that are
// not objects are skipped.
func Items(data any) []map[string]any {
	var list []any
	switch t := data.(type) {
	case map[string]any:
		list, _ = t["Items"].([]any)
	case []any:
		list = t
	case []map[string]any:
		return t
	}
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Item extracts a single item from a get response. Both a bare item and the
// {"Item": {...}} envelope are accepted.
func Item(data any) map[string]any {
	m, ok := data.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	if inner, ok := m["Item"].(map[string]any); ok {
		return inner
	}
	return m
}
