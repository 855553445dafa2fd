package stream_test

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/stream"
)

func TestConvertImage_Scalars(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"id":      events.NewStringAttribute("test-id"),
		"version": events.NewNumberAttribute("42"),
		"data":    events.NewBinaryAttribute([]byte{0x01, 0x02}),
		"active":  events.NewBooleanAttribute(true),
		"gone":    events.NewNullAttribute(),
	}

	av := stream.ConvertImage(image)
	if len(av) != 5 {
		t.Errorf("expected 5 attributes, got %d", len(av))
	}

	if v, ok := av["id"].(*types.AttributeValueMemberS); !ok || v.Value != "test-id" {
		t.Error("expected string id")
	}
	if v, ok := av["version"].(*types.AttributeValueMemberN); !ok || v.Value != "42" {
		t.Error("expected number version")
	}
	if v, ok := av["data"].(*types.AttributeValueMemberB); !ok || len(v.Value) != 2 {
		t.Error("expected binary data")
	}
	if v, ok := av["active"].(*types.AttributeValueMemberBOOL); !ok || !v.Value {
		t.Error("expected bool active")
	}
	if _, ok := av["gone"].(*types.AttributeValueMemberNULL); !ok {
		t.Error("expected null gone")
	}
}

func TestConvertImage_Nested(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"value": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"tags": events.NewListAttribute([]events.DynamoDBAttributeValue{
				events.NewStringAttribute("a"),
				events.NewNumberAttribute("7"),
			}),
		}),
		"names": events.NewStringSetAttribute([]string{"x", "y"}),
	}

	av := stream.ConvertImage(image)

	m, ok := av["value"].(*types.AttributeValueMemberM)
	if !ok {
		t.Fatal("expected map value")
	}
	l, ok := m.Value["tags"].(*types.AttributeValueMemberL)
	if !ok {
		t.Fatal("expected list tags")
	}
	if len(l.Value) != 2 {
		t.Fatalf("expected 2 list items, got %d", len(l.Value))
	}
	if v, ok := l.Value[1].(*types.AttributeValueMemberN); !ok || v.Value != "7" {
		t.Error("expected number as second item")
	}
	if v, ok := av["names"].(*types.AttributeValueMemberSS); !ok || len(v.Value) != 2 {
		t.Error("expected string set names")
	}
}

func TestConvertImage_Nil(t *testing.T) {
	av := stream.ConvertImage(nil)
	if av == nil {
		t.Fatal("expected non-nil map for nil input")
	}
	if len(av) != 0 {
		t.Errorf("expected empty map, got %d keys", len(av))
	}
}
