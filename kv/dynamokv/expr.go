package dynamokv

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of an item.
const (
	attrPK           = "pk"
	attrSK           = "sk"
	attrValue        = "value"
	attrVersionstamp = "vs"
)

// absentCondition holds when no item exists under the key.
func absentCondition() string {
	return "attribute_not_exists(" + attrPK + ")"
}

// versionstampCondition returns the condition expression asserting that the
// item carries versionstamp. n numbers the value placeholder so several
// conditions can share one expression.
func versionstampCondition(n int, versionstamp string) (string, map[string]string, map[string]types.AttributeValue) {
	placeholder := fmt.Sprintf(":vs%d", n)
	return "#vs = " + placeholder,
		map[string]string{"#vs": attrVersionstamp},
		map[string]types.AttributeValue{
			placeholder: &types.AttributeValueMemberS{Value: versionstamp},
		}
}

// condition is a condition expression with its placeholders.
type condition struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

// checkConditions folds the versionstamp checks staged for one key into a
// single expression. An empty versionstamp asserts absence.
func checkConditions(versionstamps []string) condition {
	var (
		clauses []string
		names   []map[string]string
		values  []map[string]types.AttributeValue
	)
	for i, vs := range versionstamps {
		if vs == "" {
			clauses = append(clauses, absentCondition())
			continue
		}
		expr, n, v := versionstampCondition(i, vs)
		clauses = append(clauses, expr)
		names = append(names, n)
		values = append(values, v)
	}

	c := condition{expr: strings.Join(clauses, " AND ")}
	if len(names) > 0 {
		c.names = mergeExprNames(names...)
		c.values = mergeExprValues(values...)
	}
	return c
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
