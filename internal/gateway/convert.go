package gateway

import (
	"fmt"
	"time"

	"github.com/planguard/planguard/internal/model"
)

// fromRaw converts a capability's raw host result into an interpreter
// value. Every node of the converted tree carries the same label; the
// caller restamps deps afterwards.
func fromRaw(raw any, label model.Label) *model.Value {
	switch v := raw.(type) {
	case nil:
		return model.Null(label)
	case bool:
		return model.BoolValue(v, label)
	case int:
		return model.IntValue(int64(v), label)
	case int32:
		return model.IntValue(int64(v), label)
	case int64:
		return model.IntValue(v, label)
	case float32:
		return model.FloatValue(float64(v), label)
	case float64:
		// JSON decoding delivers whole numbers as float64.
		if v == float64(int64(v)) {
			return model.IntValue(int64(v), label)
		}
		return model.FloatValue(v, label)
	case string:
		return model.StringValue(v, label)
	case time.Time:
		return model.TimeValue(v, label)
	case []any:
		elems := make([]*model.Value, len(v))
		for i, e := range v {
			elems[i] = fromRaw(e, label)
		}
		return model.ListValue(elems, label)
	case map[string]any:
		m := make(map[string]*model.Value, len(v))
		for k, e := range v {
			m[k] = fromRaw(e, label)
		}
		return model.MapValue(m, label)
	default:
		return model.StringValue(fmt.Sprintf("%v", v), label)
	}
}
