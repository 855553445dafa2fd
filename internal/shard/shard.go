// Package shard spreads a keyspace over several DynamoDB partitions.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards bounds the shard count so shard suffixes stay two hex digits.
const MaxShards = 256

// PartitionKey computes the partition of a key in keyspace whose first value
// part packs to part. With numShards=1 the keyspace is its own partition.
// With numShards>1, keys are distributed across shards based on the hash of
// part, so every key sharing a first value lands in the same shard.
func PartitionKey(keyspace string, part []byte, numShards int) string {
	numShards = clamp(numShards)
	if numShards == 1 {
		return keyspace
	}
	h := fnv.New32a()
	h.Write(part)
	return fmt.Sprintf("%s#%02x", keyspace, h.Sum32()%uint32(numShards))
}

// Partitions lists every partition of keyspace in shard order.
func Partitions(keyspace string, numShards int) []string {
	numShards = clamp(numShards)
	if numShards == 1 {
		return []string{keyspace}
	}
	out := make([]string, numShards)
	for i := range out {
		out[i] = fmt.Sprintf("%s#%02x", keyspace, i)
	}
	return out
}

func clamp(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxShards:
		return MaxShards
	default:
		return n
	}
}
