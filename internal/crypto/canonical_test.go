package crypto

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCanonicalizeOrdersAndStripsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{
			"z": nil,
			"y": true,
		},
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":1,"b":"value","d":{"y":true}}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeIndependentOfInsertionOrder(t *testing.T) {
	a := map[string]any{}
	a["webapp"] = map[string]any{"production": 2, "staging": 1}
	a["page"] = map[string]any{"development": 0}

	b := map[string]any{}
	b["page"] = map[string]any{"development": 0}
	b["webapp"] = map[string]any{"staging": 1, "production": 2}

	ga, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	gb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(ga) != string(gb) {
		t.Fatalf("expected identical encodings:\n%s\n%s", ga, gb)
	}
}

func TestCanonicalizeFloats(t *testing.T) {
	got, err := Canonicalize(map[string]any{"a": 2.0, "b": 1.25})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":2,"b":1.25}` {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	if _, err := Canonicalize(math.NaN()); err != ErrNonFiniteNumber {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
	if _, err := Canonicalize(math.Inf(1)); err != ErrNonFiniteNumber {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
}

func TestCanonicalizeJSONNumber(t *testing.T) {
	got, err := Canonicalize(json.Number("42"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	got, err = Canonicalize(json.Number("1.50"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "1.5" {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	if _, err := Canonicalize(json.Number("nope")); err != ErrInvalidNumber {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	input := map[string]any{
		"text": "e\u0301",
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := "{\"text\":\"\u00e9\"}"
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeMapKeyCollision(t *testing.T) {
	input := map[string]any{
		"e\u0301": 1,
		"\u00e9":  2,
	}

	_, err := Canonicalize(input)
	if err != ErrKeyCollision {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestCanonicalizeNonStringMapKey(t *testing.T) {
	input := map[int]any{1: "a"}
	_, err := Canonicalize(input)
	if err != ErrNonStringMapKey {
		t.Fatalf("expected ErrNonStringMapKey, got %v", err)
	}
}

func TestCanonicalizeUnsupportedType(t *testing.T) {
	type payload struct{ A int }

	_, err := Canonicalize(payload{A: 1})
	if err != ErrUnsupportedType {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestCanonicalizeSlices(t *testing.T) {
	input := []any{1, nil, "a"}
	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != `[1,null,"a"]` {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	var nilSlice []any
	got, err = Canonicalize(nilSlice)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != "null" {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestExactDigest(t *testing.T) {
	digest, err := ExactDigest(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(digest))
	}
	if digest != DigestHex([]byte(`{"a":1}`)) {
		t.Fatalf("digest does not match canonical bytes")
	}
	if DigestWithPrefix([]byte(`{"a":1}`)) != "sha256:"+digest {
		t.Fatalf("prefixed digest mismatch")
	}
}

func TestCanonicalizeExactKeepsStringsAndKeys(t *testing.T) {
	nfc := "caf\u00e9"
	nfd := "cafe\u0301"

	got, err := CanonicalizeExact(map[string]any{nfc: 1, nfd: 2})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := "{\"" + nfd + "\":2,\"" + nfc + "\":1}"
	if string(got) != want {
		t.Fatalf("unexpected exact json:\n%s\nwant:\n%s", got, want)
	}

	a, err := CanonicalizeExact(map[string]any{"k": nfc})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	b, err := CanonicalizeExact(map[string]any{"k": nfd})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("NFC and NFD values must encode differently")
	}

	if _, err := Canonicalize(map[string]any{nfc: 1, nfd: 2}); err != ErrKeyCollision {
		t.Fatalf("expected ErrKeyCollision in normalized mode, got %v", err)
	}
}

func TestCanonicalizeExactKeepsNumberLiterals(t *testing.T) {
	for _, literal := range []string{"2", "2.0", "1e2", "100", "-0.50"} {
		got, err := CanonicalizeExact(json.Number(literal))
		if err != nil {
			t.Fatalf("%s: canonicalize: %v", literal, err)
		}
		if string(got) != literal {
			t.Fatalf("%s: expected literal kept, got %s", literal, got)
		}
	}
	for _, literal := range []string{"", "nope", "01", "1.", "Inf", `"1"`, "1 2"} {
		if _, err := CanonicalizeExact(json.Number(literal)); err != ErrInvalidNumber {
			t.Fatalf("%q: expected ErrInvalidNumber, got %v", literal, err)
		}
	}
}
