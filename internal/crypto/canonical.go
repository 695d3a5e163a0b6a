package crypto

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// maxExactFloatInt is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactFloatInt = 1 << 53

// Canonicalize encodes v as canonical JSON bytes: object keys sorted at every
// level, strings NFC-normalized, nulls inside objects dropped and numbers
// written in a single stable form.
func Canonicalize(v any) ([]byte, error) {
	return encoder{normalize: true}.encode(v)
}

// CanonicalizeExact sorts keys and drops nulls like Canonicalize but keeps
// strings, keys and json.Number literals byte for byte, so inputs that differ
// anywhere encode differently.
func CanonicalizeExact(v any) ([]byte, error) {
	return encoder{}.encode(v)
}

// encoder with normalize unset skips NFC and number folding.
type encoder struct {
	normalize bool
}

func (e encoder) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type mapEntry struct {
	key   string
	value any
}

func (e encoder) writeValue(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}

	if n, ok := v.(json.Number); ok {
		return e.writeJSONNumber(buf, n)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return e.writeString(buf, rv.String())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, rv.Float())
	case reflect.Map:
		return e.writeMap(buf, rv)
	case reflect.Slice, reflect.Array:
		return e.writeSlice(buf, rv)
	case reflect.Invalid:
		buf.WriteString("null")
		return nil
	default:
		return ErrUnsupportedType
	}
}

func (e encoder) writeString(buf *bytes.Buffer, s string) error {
	if e.normalize {
		s = norm.NFC.String(s)
	}
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

// writeFloat prints integral values without a fraction so that 2 and 2.0
// canonicalize identically.
func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFiniteNumber
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloatInt {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func (e encoder) writeJSONNumber(buf *bytes.Buffer, n json.Number) error {
	if !e.normalize {
		if !isNumberLiteral(n) {
			return ErrInvalidNumber
		}
		buf.WriteString(n.String())
		return nil
	}
	if value, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		buf.WriteString(strconv.FormatInt(value, 10))
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return ErrInvalidNumber
	}
	return writeFloat(buf, f)
}

func (e encoder) writeMap(buf *bytes.Buffer, rv reflect.Value) error {
	if rv.Type().Key().Kind() != reflect.String {
		return ErrNonStringMapKey
	}

	entries := make([]mapEntry, 0, rv.Len())
	seen := make(map[string]struct{}, rv.Len())

	for _, key := range rv.MapKeys() {
		keyStr := key.String()
		if e.normalize {
			keyStr = norm.NFC.String(keyStr)
			if _, ok := seen[keyStr]; ok {
				return ErrKeyCollision
			}
			seen[keyStr] = struct{}{}
		}

		val := rv.MapIndex(key).Interface()
		if isNilValue(val) {
			continue
		}
		entries = append(entries, mapEntry{key: keyStr, value: val})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})

	buf.WriteByte('{')
	for i, entry := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.writeString(buf, entry.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := e.writeValue(buf, entry.value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (e encoder) writeSlice(buf *bytes.Buffer, rv reflect.Value) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		buf.WriteString("null")
		return nil
	}

	buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.writeValue(buf, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

// isNumberLiteral reports whether n is a single JSON number.
func isNumberLiteral(n json.Number) bool {
	if n == "" || (n[0] != '-' && (n[0] < '0' || n[0] > '9')) {
		return false
	}
	return json.Valid([]byte(n))
}
