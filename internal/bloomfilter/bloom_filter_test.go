package bloomfilter

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"testing"
)

func TestFilterContainsAllMembers(t *testing.T) {
	var values []string
	for i := 0; i < 1000; i++ {
		values = append(values, fmt.Sprintf("sym-%04d", i))
	}

	raw, err := CreateFilter(values)
	if err != nil {
		t.Fatalf("unexpected error creating filter: %s", err)
	}
	filter, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error decoding filter: %s", err)
	}

	for _, value := range values {
		if !filter.Test(value) {
			t.Errorf("unexpected negative result for member %q", value)
		}
	}
}

func TestFilterFalsePositiveRate(t *testing.T) {
	var values []string
	for i := 0; i < 1000; i++ {
		values = append(values, fmt.Sprintf("sym-%04d", i))
	}
	filter := New(values)

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if filter.Test(fmt.Sprintf("absent-%05d", i)) {
			falsePositives++
		}
	}

	// Sized for 1%; leave generous slack so the test is not sensitive to
	// the exact hash mixing.
	if limit := probes / 20; falsePositives > limit {
		t.Errorf("too many false positives. limit=%d have=%d", limit, falsePositives)
	}
}

func TestEmptyFilter(t *testing.T) {
	raw, err := CreateFilter(nil)
	if err != nil {
		t.Fatalf("unexpected error creating filter: %s", err)
	}
	filter, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error decoding filter: %s", err)
	}

	if filter.Test("anything") {
		t.Errorf("unexpected positive result from an empty filter")
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write([]byte(`{"version": 999, "numHashFunctions": 1, "numBits": 64, "buckets": [0]}`)); err != nil {
		t.Fatalf("unexpected error writing payload: %s", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("unexpected error closing gzip writer: %s", err)
	}

	if _, err := Decode(buf.Bytes()); err == nil {
		t.Errorf("expected error decoding filter with version 999")
	}
}
