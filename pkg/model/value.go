package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value carries.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

var errUnsupportedValue = errors.New("model: unsupported value type")

// Value is the closed union of answer and condition values: null, string,
// number, bool or a list of strings. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []string
}

// Null returns the empty value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a list of strings. The slice is copied.
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

// Kind reports the active variant.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload when the value is a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric payload when the value is a number.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean payload when the value is a bool.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsList returns a copy of the list payload when the value is a list.
func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]string{}, v.list...), true
}

// IsEmpty is the single emptiness predicate used by conditions, validation,
// progress tracking and conflict detection: null, "" and empty lists are empty.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Equal reports strict, type-sensitive equality. A number never equals a
// string even when they print the same.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Interface returns the payload as a plain Go value (nil, string, float64,
// bool or []string).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		return append([]string{}, v.list...)
	default:
		return nil
	}
}

// String renders the value for messages and prompts.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

// FromAny converts values produced by JSON/YAML decoders or callers into a
// Value. Integers become numbers, []any must only hold strings, and empty maps
// collapse to null. Non-empty maps and other types are rejected.
func FromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return typed, nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case float64:
		return Number(typed), nil
	case float32:
		return Number(float64(typed)), nil
	case int:
		return Number(float64(typed)), nil
	case int32:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case uint:
		return Number(float64(typed)), nil
	case uint64:
		return Number(float64(typed)), nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return Null(), fmt.Errorf("model: invalid number %q: %w", typed, err)
		}
		return Number(f), nil
	case []string:
		return List(typed...), nil
	case []any:
		items := make([]string, 0, len(typed))
		for idx, item := range typed {
			s, ok := item.(string)
			if !ok {
				return Null(), fmt.Errorf("model: list item %d is %T, lists only hold strings", idx, item)
			}
			items = append(items, s)
		}
		return List(items...), nil
	case map[string]any:
		if len(typed) == 0 {
			return Null(), nil
		}
		return Null(), fmt.Errorf("%w: object", errUnsupportedValue)
	default:
		return Null(), fmt.Errorf("%w: %T", errUnsupportedValue, raw)
	}
}

// MustValue is FromAny for literals known to be valid; it panics otherwise.
func MustValue(raw any) Value {
	v, err := FromAny(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// MarshalJSON encodes the value as a native JSON scalar or array.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("model: cannot encode %v as JSON", v.num)
		}
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a native JSON scalar or array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes the value as a YAML scalar or sequence.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

// UnmarshalYAML decodes a YAML scalar or sequence of strings.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
