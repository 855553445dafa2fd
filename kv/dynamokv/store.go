// Package dynamokv implements kv.KV on a single DynamoDB table.
//
// Items are keyed by pk (S), the partition of the key's keyspace, and sk
// (B), the packed form of the whole key. Packed keys sort in key order, so a
// prefix scan is a Query with begins_with on sk. Commits run as one
// TransactWriteItems call; checks become condition expressions on the items
// they guard.
//
// A keyspace is one partition unless Config.NumShards spreads it over
// several, chosen by the hash of the key's second part. Prefixes naming that
// part hit a single shard; scans of a whole keyspace fan out to all of them.
package dynamokv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/lattice/internal/shard"
	"github.com/jacentio/lattice/kv"
)

const (
	// MaxTransactItems is the TransactWriteItems ceiling.
	MaxTransactItems = 100

	maxBatchGet = 100
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config holds configuration for a Store.
type Config struct {
	// NumShards is the number of partitions per keyspace. Raise it for
	// keyspaces that take more writes than one partition sustains. Changing
	// it for a table that already holds items strands them.
	// Default: 1, at most 256
	NumShards int
}

// Store is a DynamoDB-backed kv.KV.
type Store struct {
	client    Client
	table     string
	numShards int
}

// New returns a store writing to the named table with one partition per
// keyspace.
func New(client Client, table string) *Store {
	return NewWithConfig(client, table, Config{})
}

// NewWithConfig returns a store writing to the named table.
func NewWithConfig(client Client, table string, config Config) *Store {
	n := min(max(config.NumShards, 1), shard.MaxShards)
	return &Store{client: client, table: table, numShards: n}
}

// MaxAtomicOps implements kv.Limiter.
func (s *Store) MaxAtomicOps() int {
	return MaxTransactItems
}

func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	entries, err := s.GetMany(ctx, []kv.Key{key})
	if err != nil {
		return kv.Entry{}, err
	}
	return entries[0], nil
}

// GetMany issues strongly consistent BatchGetItem calls of up to 100 keys.
// Repeated keys are fetched once.
func (s *Store) GetMany(ctx context.Context, keys []kv.Key) ([]kv.Entry, error) {
	out := make([]kv.Entry, len(keys))
	slots := make(map[string][]int, len(keys))
	var pending []map[string]types.AttributeValue

	for i, key := range keys {
		out[i] = kv.Entry{Key: key}
		item, packed, err := itemKey(key, s.numShards)
		if err != nil {
			return nil, err
		}
		id := string(packed)
		if _, seen := slots[id]; !seen {
			pending = append(pending, item)
		}
		slots[id] = append(slots[id], i)
	}

	for chunk := range slices.Chunk(pending, maxBatchGet) {
		request := map[string]types.KeysAndAttributes{
			s.table: {Keys: chunk, ConsistentRead: aws.Bool(true)},
		}
		for len(request) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", err)
			}
			for _, raw := range result.Responses[s.table] {
				entry, packed, err := decodeItem(raw)
				if err != nil {
					return nil, err
				}
				for _, i := range slots[string(packed)] {
					out[i].Value = maps.Clone(entry.Value)
					out[i].Versionstamp = entry.Versionstamp
				}
			}
			request = result.UnprocessedKeys
		}
	}
	return out, nil
}

// List queries the partition of the prefix. An empty prefix scans the whole
// table and sorts the result, since Scan does not return items in key order.
func (s *Store) List(ctx context.Context, prefix kv.Key) iter.Seq2[kv.Entry, error] {
	if len(prefix) == 0 {
		return s.scanAll(ctx)
	}
	return func(yield func(kv.Entry, error) bool) {
		space, ok := prefix[0].(string)
		if !ok {
			yield(kv.Entry{}, fmt.Errorf("%w: first part must be a string, got %T", kv.ErrInvalidKey, prefix[0]))
			return
		}
		packed, err := prefix.Pack()
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}

		if len(prefix) == 1 && s.numShards > 1 {
			s.fanOut(ctx, shard.Partitions(space, s.numShards), packed, yield)
			return
		}

		pk := shard.PartitionKey(space, shardPart(prefix), s.numShards)
		for entry, err := range s.query(ctx, pk, packed) {
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func (s *Store) query(ctx context.Context, pk string, prefix []byte) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
			ExpressionAttributeNames: map[string]string{
				"#pk": attrPK,
				"#sk": attrSK,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pk},
				":prefix": &types.AttributeValueMemberB{Value: prefix},
			},
			ConsistentRead: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(kv.Entry{}, fmt.Errorf("query %s: %w", pk, err))
				return
			}
			for _, raw := range page.Items {
				entry, _, err := decodeItem(raw)
				if err != nil {
					yield(kv.Entry{}, err)
					return
				}
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

// fanOut queries every shard of a keyspace concurrently and yields the
// merged result in key order.
func (s *Store) fanOut(ctx context.Context, partitions []string, prefix []byte, yield func(kv.Entry, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]row, len(partitions))
	errs := make(chan error, len(partitions))
	var wg sync.WaitGroup

	for i, pk := range partitions {
		wg.Add(1)
		go func(i int, pk string) {
			defer wg.Done()
			for entry, err := range s.query(ctx, pk, prefix) {
				if err != nil {
					errs <- err
					cancel()
					return
				}
				results[i] = append(results[i], row{packed: entry.Key.MustPack(), entry: entry})
			}
		}(i, pk)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) {
			yield(kv.Entry{}, err)
			return
		}
	}
	if err := ctx.Err(); err != nil {
		yield(kv.Entry{}, err)
		return
	}

	rows := slices.Concat(results...)
	sortRows(rows)
	for _, r := range rows {
		if !yield(r.entry, nil) {
			return
		}
	}
}

type row struct {
	packed []byte
	entry  kv.Entry
}

func sortRows(rows []row) {
	slices.SortFunc(rows, func(a, b row) int {
		return bytes.Compare(a.packed, b.packed)
	})
}

func (s *Store) scanAll(ctx context.Context) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		var rows []row

		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:      aws.String(s.table),
			ConsistentRead: aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(kv.Entry{}, fmt.Errorf("scan: %w", err))
				return
			}
			for _, raw := range page.Items {
				entry, packed, err := decodeItem(raw)
				if err != nil {
					yield(kv.Entry{}, err)
					return
				}
				rows = append(rows, row{packed: packed, entry: entry})
			}
		}

		sortRows(rows)
		for _, r := range rows {
			if !yield(r.entry, nil) {
				return
			}
		}
	}
}

func (s *Store) Atomic() kv.Atomic {
	return &atomicOp{store: s}
}

// Close is a no-op; the DynamoDB client owns no per-store resources.
func (s *Store) Close() error {
	return nil
}

type atomicOp struct {
	kv.Ops
	store *Store
}

// Commit generates a UUIDv7 versionstamp and writes every staged operation
// in one TransactWriteItems call.
func (a *atomicOp) Commit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate versionstamp: %w", err)
	}
	vs := id.String()

	writes, err := mergeOps(a.Staged(), a.store.numShards)
	if err != nil {
		return "", err
	}
	if len(writes) == 0 {
		return vs, nil
	}
	if len(writes) > MaxTransactItems {
		return "", fmt.Errorf("transaction touches %d items, limit is %d", len(writes), MaxTransactItems)
	}

	items, err := a.store.transactItems(writes, vs)
	if err != nil {
		return "", err
	}
	_, err = a.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return "", mapCommitError(err)
	}
	return vs, nil
}

// itemWrite is every staged operation on one key, merged. DynamoDB allows a
// single action per item in a transaction.
type itemWrite struct {
	key      map[string]types.AttributeValue
	checks   []string
	checked  bool
	mutation kv.OpKind
	value    map[string]any
}

// mergeOps groups staged operations by key, keeping first-seen order. The
// last set or delete on a key wins; all checks on a key must hold.
func mergeOps(ops []kv.Op, numShards int) ([]*itemWrite, error) {
	var writes []*itemWrite
	byKey := make(map[string]*itemWrite, len(ops))

	for _, op := range ops {
		item, packed, err := itemKey(op.Key, numShards)
		if err != nil {
			return nil, err
		}
		w, ok := byKey[string(packed)]
		if !ok {
			w = &itemWrite{key: item}
			byKey[string(packed)] = w
			writes = append(writes, w)
		}
		switch op.Kind {
		case kv.OpCheck:
			w.checks = append(w.checks, op.Versionstamp)
			w.checked = true
		case kv.OpSet:
			w.mutation = kv.OpSet
			w.value = op.Value
		case kv.OpDelete:
			w.mutation = kv.OpDelete
			w.value = nil
		}
	}
	return writes, nil
}

func (s *Store) transactItems(writes []*itemWrite, vs string) ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		var cond condition
		if w.checked {
			cond = checkConditions(w.checks)
		}
		condExpr := func() *string {
			if cond.expr == "" {
				return nil
			}
			return aws.String(cond.expr)
		}

		switch w.mutation {
		case kv.OpSet:
			item, err := encodeItem(w.key, w.value, vs)
			if err != nil {
				return nil, err
			}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:                 aws.String(s.table),
					Item:                      item,
					ConditionExpression:       condExpr(),
					ExpressionAttributeNames:  cond.names,
					ExpressionAttributeValues: cond.values,
				},
			})
		case kv.OpDelete:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                 aws.String(s.table),
					Key:                       w.key,
					ConditionExpression:       condExpr(),
					ExpressionAttributeNames:  cond.names,
					ExpressionAttributeValues: cond.values,
				},
			})
		default:
			items = append(items, types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName:                 aws.String(s.table),
					Key:                       w.key,
					ConditionExpression:       aws.String(cond.expr),
					ExpressionAttributeNames:  cond.names,
					ExpressionAttributeValues: cond.values,
				},
			})
		}
	}
	return items, nil
}

// itemKey returns the primary key attributes of key and its packed form.
func itemKey(key kv.Key, numShards int) (map[string]types.AttributeValue, []byte, error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("%w: empty key", kv.ErrInvalidKey)
	}
	space, ok := key[0].(string)
	if !ok {
		return nil, nil, fmt.Errorf("%w: first part must be a string, got %T", kv.ErrInvalidKey, key[0])
	}
	packed, err := key.Pack()
	if err != nil {
		return nil, nil, err
	}
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: shard.PartitionKey(space, shardPart(key), numShards)},
		attrSK: &types.AttributeValueMemberB{Value: packed},
	}, packed, nil
}

// shardPart is the packed second part of key, which picks its shard.
func shardPart(key kv.Key) []byte {
	if len(key) < 2 {
		return nil
	}
	b, err := kv.Key{key[1]}.Pack()
	if err != nil {
		return nil
	}
	return b
}

func encodeItem(key map[string]types.AttributeValue, value map[string]any, vs string) (map[string]types.AttributeValue, error) {
	if value == nil {
		value = map[string]any{}
	}
	av, err := attributevalue.MarshalMap(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	item := maps.Clone(key)
	item[attrValue] = &types.AttributeValueMemberM{Value: av}
	item[attrVersionstamp] = &types.AttributeValueMemberS{Value: vs}
	return item, nil
}

// DecodeItem converts an item of the table, such as a stream image, into an
// entry.
func DecodeItem(raw map[string]types.AttributeValue) (kv.Entry, error) {
	entry, _, err := decodeItem(raw)
	return entry, err
}

// decodeItem converts a raw item back into an entry. Numbers become int64
// when integral and float64 otherwise.
func decodeItem(raw map[string]types.AttributeValue) (kv.Entry, []byte, error) {
	sk, ok := raw[attrSK].(*types.AttributeValueMemberB)
	if !ok {
		return kv.Entry{}, nil, fmt.Errorf("%w: item has no binary sk", kv.ErrInvalidKey)
	}
	key, err := kv.Unpack(sk.Value)
	if err != nil {
		return kv.Entry{}, nil, err
	}

	entry := kv.Entry{Key: key, Value: map[string]any{}}
	if v, ok := raw[attrValue].(*types.AttributeValueMemberM); ok {
		err := attributevalue.UnmarshalMapWithOptions(v.Value, &entry.Value, func(o *attributevalue.DecoderOptions) {
			o.UseNumber = true
		})
		if err != nil {
			return kv.Entry{}, nil, fmt.Errorf("unmarshal value: %w", err)
		}
		for k, field := range entry.Value {
			entry.Value[k] = kv.Normalize(field)
		}
	}
	if v, ok := raw[attrVersionstamp].(*types.AttributeValueMemberS); ok {
		entry.Versionstamp = v.Value
	}
	return entry, sk.Value, nil
}

// mapCommitError maps DynamoDB transaction errors to kv sentinels. A failed
// condition anywhere in the transaction wins over a conflict.
func mapCommitError(err error) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		conflict := false
		for _, reason := range txErr.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed":
				return kv.ErrCheckFailed
			case "TransactionConflict":
				conflict = true
			}
		}
		if conflict {
			return fmt.Errorf("%w: %v", kv.ErrConflict, err)
		}
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return fmt.Errorf("%w: %v", kv.ErrConflict, err)
	}
	return fmt.Errorf("transact write: %w", err)
}
