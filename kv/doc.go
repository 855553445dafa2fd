// Package kv defines the ordered key-value store contract the lattice engine
// is built on.
//
// A store exposes point reads, order-preserving multi-reads, prefix listing
// and a single atomic primitive: a transaction builder that stages
// compare-and-set checks, sets and deletes and commits them all or none.
// Every successful commit returns a versionstamp that is written to every
// key the commit touched.
//
// # Keys
//
// A [Key] is a tuple of parts (string, []byte, int64, float64, bool).
// [Key.Pack] produces an order-preserving byte encoding in which the encoding
// of a prefix tuple is a byte prefix of the encoding of every tuple that
// starts with it, so prefix listing is a plain byte range scan.
//
// # Backends
//
//   - memkv: in-memory B-tree, used by tests and the CLI default
//   - pebblekv: embedded Pebble LSM
//   - badgerkv: embedded Badger with serializable transactions
//   - dynamokv: a single DynamoDB table driven through TransactWriteItems
//
// All backends pass the shared conformance suite in package kvtest.
package kv
