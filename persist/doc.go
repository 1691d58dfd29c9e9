// Package persist synchronizes a designer graph store with a key-value
// backend.
//
// Nodes and edges live in two flat tables keyed by id. Loads replace or
// extend the in-memory model; saves upsert every item one at a time. A save
// that fails part way leaves the backend partially updated and the model
// dirty, so the user can retry.
package persist
