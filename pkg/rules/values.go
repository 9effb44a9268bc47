package rules

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"mime"
	"strconv"
	"strings"
)

// TypeName classifies a decoded value: null, boolean, number, string, list,
// map or binary.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []byte:
		return "binary"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return "unknown"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// toBigInt covers integers beyond int64, which the JSON decoder keeps as
// json.Number.
func toBigInt(v any) (*big.Int, bool) {
	if i, ok := toInt64(v); ok {
		return big.NewInt(i), true
	}
	switch n := v.(type) {
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case json.Number:
		if strings.ContainsAny(n.String(), ".eE") {
			return nil, false
		}
		return new(big.Int).SetString(n.String(), 10)
	}
	return nil, false
}

func isIntegerValue(v any) bool {
	_, ok := toBigInt(v)
	return ok
}

func isDecimalValue(v any) bool {
	switch n := v.(type) {
	case float32, float64:
		return true
	case json.Number:
		return strings.ContainsAny(n.String(), ".eE")
	}
	return false
}

// AsString renders a scalar as text. Containers report false.
func AsString(v any) (string, bool) {
	switch tv := v.(type) {
	case nil:
		return "", true
	case string:
		return tv, true
	case []byte:
		return string(tv), true
	case bool:
		return strconv.FormatBool(tv), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32), true
	case json.Number:
		return tv.String(), true
	}
	if i, ok := toBigInt(v); ok {
		return i.String(), true
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// Equal compares two decoded values structurally. Integers of different Go
// widths compare by value, but an integer never equals a decimal.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, has := bv[k]
			if !has || !Equal(v, w) {
				return false
			}
		}
		return true
	}

	if ai, ok := toBigInt(a); ok {
		bi, ok := toBigInt(b)
		return ok && ai.Cmp(bi) == 0
	}
	if isDecimalValue(a) {
		if !isDecimalValue(b) {
			return false
		}
		an, aok := a.(json.Number)
		bn, bok := b.(json.Number)
		if aok && bok && an == bn {
			return true
		}
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return af == bf
	}
	return false
}

func isEmptyValue(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case []byte:
		return len(tv) == 0
	case []any:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	}
	return false
}

func baseMediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}
