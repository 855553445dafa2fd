package shard

import (
	"slices"
	"strings"
	"testing"
)

func TestPartitionKey_SingleShard(t *testing.T) {
	// With numShards=1, the keyspace is the partition
	tests := []struct {
		keyspace string
		part     string
	}{
		{"users", "u1"},
		{"users", "u2"},
		{"users_by_role", "admin"},
	}

	for _, tt := range tests {
		result := PartitionKey(tt.keyspace, []byte(tt.part), 1)
		if result != tt.keyspace {
			t.Errorf("PartitionKey(%q, %q, 1) = %q, want %q",
				tt.keyspace, tt.part, result, tt.keyspace)
		}
	}
}

func TestPartitionKey_ZeroShards(t *testing.T) {
	// Zero or negative shards should be treated as 1
	if result := PartitionKey("users", []byte("u1"), 0); result != "users" {
		t.Errorf("expected 'users', got %q", result)
	}
	if result := PartitionKey("users", []byte("u1"), -1); result != "users" {
		t.Errorf("expected 'users', got %q", result)
	}
}

func TestPartitionKey_MultipleShards(t *testing.T) {
	numShards := 16
	partitions := Partitions("users", numShards)

	shardCounts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		part := "u" + string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune('A'+i%7))
		pk := PartitionKey("users", []byte(part), numShards)

		if !strings.HasPrefix(pk, "users#") {
			t.Fatalf("expected prefix users#, got %q", pk)
		}
		if !slices.Contains(partitions, pk) {
			t.Fatalf("partition %q not listed by Partitions", pk)
		}
		shardCounts[pk]++
	}

	if len(shardCounts) < numShards/2 {
		t.Errorf("expected keys spread over at least %d shards, got %d", numShards/2, len(shardCounts))
	}
}

func TestPartitionKey_Deterministic(t *testing.T) {
	a := PartitionKey("users_by_role", []byte("admin"), 32)
	b := PartitionKey("users_by_role", []byte("admin"), 32)
	if a != b {
		t.Errorf("expected same partition, got %q and %q", a, b)
	}
}

func TestPartitions(t *testing.T) {
	tests := []struct {
		name      string
		numShards int
		want      []string
	}{
		{"single", 1, []string{"users"}},
		{"zero", 0, []string{"users"}},
		{"three", 3, []string{"users#00", "users#01", "users#02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partitions("users", tt.numShards)
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if got := len(Partitions("users", 1000)); got != MaxShards {
		t.Errorf("expected %d partitions at most, got %d", MaxShards, got)
	}
}
