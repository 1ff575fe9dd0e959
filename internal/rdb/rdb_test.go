package rdb

import (
	"bytes"
	"strings"
	"testing"
)

func TestEmptyRDBValidates(t *testing.T) {
	data := Empty()
	res, err := Validate(data)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HeaderOK || !res.FooterOK || res.HasAuxData {
		t.Fatalf("got %+v", res)
	}
}

func TestStringAuxRoundTripShort(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeString(&buf, "hello"); err != nil {
		t.Fatal(err)
	}
	r := bytes.NewReader(buf.Bytes())
	got, err := decodeString(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestStringAuxRoundTripCompressed(t *testing.T) {
	long := strings.Repeat("ab", 200)
	var buf bytes.Buffer
	if err := encodeString(&buf, long); err != nil {
		t.Fatal(err)
	}
	r := bytes.NewReader(buf.Bytes())
	got, err := decodeString(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != long {
		t.Fatalf("round trip mismatch, len got=%d want=%d", len(got), len(long))
	}
}

func TestValidateRejectsTruncated(t *testing.T) {
	if _, err := Validate([]byte("short")); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
