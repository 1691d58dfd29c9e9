package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdOptions configures the etcd connection.
type EtcdOptions struct {
	// Endpoints lists the etcd cluster members (e.g., "localhost:2379").
	Endpoints []string

	// Namespace prefixes every key written by the backend.
	// Default: "designer"
	Namespace string

	// DialTimeout bounds connection establishment.
	// Default: 5 seconds
	DialTimeout time.Duration

	TLS *TLSConfig
}

// Etcd is a Backend that stores one key per item.
//
// Key layout:
//
//	/<namespace>/tables/<table>        table marker
//	/<namespace>/items/<table>/<id>    JSON document
//
// A scan is a single prefix range read, returned in key order.
type Etcd struct {
	client    *clientv3.Client
	kv        clientv3.KV
	namespace string
}

// NewEtcd connects to etcd and verifies connectivity with a quick read.
func NewEtcd(opts EtcdOptions) (*Etcd, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	}

	tlsConfig, err := opts.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = cli.Get(ctx, "health-check")
	if err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	e := newEtcdWithKV(cli, opts.Namespace)
	e.client = cli
	return e, nil
}

// newEtcdWithKV builds a backend over an existing KV, which is how tests
// substitute an in-process fake.
func newEtcdWithKV(kv clientv3.KV, namespace string) *Etcd {
	if namespace == "" {
		namespace = "designer"
	}
	return &Etcd{kv: kv, namespace: namespace}
}

// Run executes req against etcd.
func (e *Etcd) Run(ctx context.Context, req Request) (*Response, error) {
	return dispatch(ctx, e, req)
}

// CreateTable writes the table marker.
func (e *Etcd) CreateTable(ctx context.Context, table string) error {
	if _, err := e.kv.Put(ctx, e.tableKey(table), "1"); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Close closes the etcd client.
func (e *Etcd) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *Etcd) tableKey(table string) string {
	return "/" + path.Join(e.namespace, "tables", table)
}

func (e *Etcd) itemPrefix(table string) string {
	return "/" + path.Join(e.namespace, "items", table) + "/"
}

func (e *Etcd) ensureTable(ctx context.Context, table string) error {
	resp, err := e.kv.Get(ctx, e.tableKey(table))
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if len(resp.Kvs) == 0 {
		return ErrTableNotFound
	}
	return nil
}

func (e *Etcd) get(ctx context.Context, table, id string) (map[string]any, error) {
	if err := e.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	resp, err := e.kv.Get(ctx, e.itemPrefix(table)+id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from %s: %w", id, table, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return decodeItem(resp.Kvs[0].Value)
}

func (e *Etcd) scan(ctx context.Context, table string) ([]map[string]any, error) {
	if err := e.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	prefix := e.itemPrefix(table)
	resp, err := e.kv.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	items := make([]map[string]any, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		// Ids containing "/" would surface nested keys; they are not written by Put.
		if strings.Contains(strings.TrimPrefix(string(kv.Key), prefix), "/") {
			continue
		}
		item, err := decodeItem(kv.Value)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *Etcd) put(ctx context.Context, table, id string, item map[string]any) error {
	if strings.Contains(id, "/") {
		return fmt.Errorf("item id %q must not contain '/'", id)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", id, err)
	}

	if err := e.CreateTable(ctx, table); err != nil {
		return err
	}
	if _, err := e.kv.Put(ctx, e.itemPrefix(table)+id, string(data)); err != nil {
		return fmt.Errorf("failed to put %s into %s: %w", id, table, err)
	}
	return nil
}
