package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

var ErrNonScalarConstraint = errors.New("constraint values must be a boolean, number or string")

type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// Value is a single constraint value. Constraints are passed through to the
// caller untouched, so numbers keep the literal they were written with.
type Value struct {
	kind ValueKind
	b    bool
	n    json.Number
	s    string
}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(i, 10))} }

func Float(f float64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

func (v Value) Kind() ValueKind { return v.kind }

// Interface returns the value as bool, json.Number or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.n.String()
	case KindString:
		return v.s
	default:
		return "<invalid>"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindNumber:
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case bool:
		*v = Bool(value)
	case json.Number:
		*v = Value{kind: KindNumber, n: value}
	case string:
		*v = String(value)
	default:
		return ErrNonScalarConstraint
	}
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: %w", node.Line, ErrNonScalarConstraint)
	}
	switch node.ShortTag() {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return err
		}
		*v = Int(i)
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("line %d: %w", node.Line, ErrNonScalarConstraint)
		}
		*v = Float(f)
	case "!!str":
		*v = String(node.Value)
	default:
		return fmt.Errorf("line %d: %w", node.Line, ErrNonScalarConstraint)
	}
	return nil
}

// Constraints maps a constraint name to its value.
type Constraints map[string]Value

// Clone returns a copy that is never nil.
func (c Constraints) Clone() Constraints {
	out := make(Constraints, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// View returns the constraints as plain values for canonical encoding.
func (c Constraints) View() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v.Interface()
	}
	return out
}

// Validate reports the first constraint whose value is not a scalar.
func (c Constraints) Validate() error {
	for k, v := range c {
		if v.kind == KindInvalid {
			return fmt.Errorf("constraint %q: %w", k, ErrNonScalarConstraint)
		}
	}
	return nil
}
