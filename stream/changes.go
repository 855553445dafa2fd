// Package stream turns DynamoDB Streams events of a dynamokv table into
// logical record changes.
//
// Every logical record is stored under several items, one per access key.
// The handler passes on the changes of primary copies only, so each write
// of a record yields exactly one Change.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/kv/dynamokv"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
)

// ChangeKind is the stream event name of a change.
type ChangeKind string

const (
	Insert ChangeKind = "INSERT"
	Modify ChangeKind = "MODIFY"
	Remove ChangeKind = "REMOVE"
)

// Change is one write to a logical record. Old is nil for inserts and New is
// nil for removals.
type Change struct {
	EventID string
	Kind    ChangeKind
	Table   string
	Key     kv.Key

	Old             map[string]any
	OldVersionstamp string
	New             map[string]any
	NewVersionstamp string
}

// Sink receives logical changes. A returned error fails the batch, so the
// stream retries it.
type Sink func(ctx context.Context, change Change) error

// Handler processes DynamoDB stream events of a dynamokv table.
type Handler struct {
	db     *store.DB
	sink   Sink
	logger *slog.Logger
}

// NewHandler creates a new stream handler. Records of tables not registered
// with db are ignored.
func NewHandler(db *store.DB, sink Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:     db,
		sink:   sink,
		logger: logger,
	}
}

// HandleChanges passes the logical changes of event to the sink in order.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	kind := ChangeKind(record.EventName)
	switch kind {
	case Insert, Modify, Remove:
	default:
		return nil
	}

	change := Change{EventID: record.EventID, Kind: kind}

	var tbl *schema.Table
	if len(record.Change.OldImage) > 0 {
		entry, err := dynamokv.DecodeItem(ConvertImage(record.Change.OldImage))
		if err != nil {
			return fmt.Errorf("decode old image: %w", err)
		}
		t, ok := h.primaryTable(entry.Key)
		if !ok {
			return nil
		}
		tbl = t
		change.Key = entry.Key
		change.Old = coerce(tbl, entry.Value)
		change.OldVersionstamp = entry.Versionstamp
	}
	if len(record.Change.NewImage) > 0 {
		entry, err := dynamokv.DecodeItem(ConvertImage(record.Change.NewImage))
		if err != nil {
			return fmt.Errorf("decode new image: %w", err)
		}
		t, ok := h.primaryTable(entry.Key)
		if !ok {
			return nil
		}
		tbl = t
		change.Key = entry.Key
		change.New = coerce(tbl, entry.Value)
		change.NewVersionstamp = entry.Versionstamp
	}
	if tbl == nil {
		h.logger.Warn("stream record without images",
			"eventID", record.EventID,
			"event", record.EventName,
		)
		return nil
	}
	change.Table = tbl.Name()

	h.logger.Debug("record changed",
		"table", change.Table,
		"key", change.Key.String(),
		"kind", string(change.Kind),
		"versionstamp", change.NewVersionstamp,
	)

	if h.sink == nil {
		return nil
	}
	if err := h.sink(ctx, change); err != nil {
		return fmt.Errorf("sink %s %s: %w", change.Table, change.Key, err)
	}
	return nil
}

// primaryTable returns the table whose primary keyspace holds key. Unique
// and index copies live in keyspaces named after the table plus a suffix.
func (h *Handler) primaryTable(key kv.Key) (*schema.Table, bool) {
	if len(key) != 2 || h.db == nil {
		return nil, false
	}
	name, ok := key[0].(string)
	if !ok {
		return nil, false
	}
	return h.db.Registry().Table(name)
}

func coerce(t *schema.Table, values map[string]any) map[string]any {
	for field, v := range values {
		if v == nil {
			continue
		}
		if c, err := t.Coerce(field, v); err == nil {
			values[field] = c
		}
	}
	return values
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	default:
		return nil
	}
}
