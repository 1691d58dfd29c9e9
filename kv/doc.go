// Package kv provides the key-value persistence contract used by the
// designer and a set of backends that implement it.
//
// Every backend answers the same three operations through Run:
//
//	get   {"key": {"id": "..."}}   -> the item, or nil when absent
//	scan  (no payload)             -> {"Items": [...], "Count": n}
//	put   {"item": {...}}          -> upsert keyed by item["id"]
//
// Store-level failures come back as a Response with Success false. A table
// that does not exist is reported with an error message containing
// "ResourceNotFoundException", matching what DynamoDB-style services return.
// Run itself only returns an error when the request could not be delivered.
//
// # Backends
//
//   - Memory: in-process maps, for tests and local sessions
//   - Redis: one hash per table (go-redis)
//   - Etcd: one key per item under a namespace prefix (etcd clientv3)
//   - Neo4j: one node per item holding its JSON document (neo4j-go-driver)
//   - SQLite: one file holding every table (go-sqlite3)
//   - RemoteClient: forwards requests to a Store gRPC server
//
// Open builds the backend named by configuration.
package kv
