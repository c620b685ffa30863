package uidset

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func setText(ranges []Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func TestCompressEmpty(t *testing.T) {
	if got := Compress(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestCompressSingleton(t *testing.T) {
	if got := setText(Compress([]uint32{42})); got != "42" {
		t.Fatalf("got %q", got)
	}
}

func TestCompressAscendingRuns(t *testing.T) {
	if got := setText(Compress([]uint32{1, 2, 3, 5, 7, 8, 9})); got != "1:3,5,7:9" {
		t.Fatalf("got %q", got)
	}
}

func TestCompressDeduplicates(t *testing.T) {
	if got := setText(Compress([]uint32{1, 1, 2, 2, 3})); got != "1:3" {
		t.Fatalf("got %q", got)
	}
}

func TestCompressPreservesSortOrder(t *testing.T) {
	// A REVERSE DATE sort can hand back numerically adjacent UIDs in
	// descending order; they must not be merged or reordered.
	if got := setText(Compress([]uint32{5, 4, 3, 10, 11})); got != "5,4,3,10:11" {
		t.Fatalf("got %q", got)
	}
}

func TestCompressExpandIdentity(t *testing.T) {
	cases := [][]uint32{
		{42},
		{1, 2, 3, 5, 7, 8, 9},
		{9, 8, 7, 1, 2, 3},
		{100, 1, 101, 2, 102, 3},
		{5, 3, 1, 2, 4},
	}
	for _, ids := range cases {
		got := Expand(Compress(ids))
		if !reflect.DeepEqual(got, ids) {
			t.Fatalf("compress/expand of %v: got %v", ids, got)
		}
	}
}

func TestBatchesRespectsLimit(t *testing.T) {
	// Non-adjacent UIDs so nothing compresses.
	ids := make([]uint32, 2000)
	for i := range ids {
		ids[i] = uint32(i * 3)
	}
	ranges := Compress(ids)
	batches, err := Batches(ranges, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) < 2 {
		t.Fatalf("expected multiple batches, got %d", len(batches))
	}
	var joined []string
	total := 0
	for _, b := range batches {
		if len(b.Set) > DefaultMaxCommandLen {
			t.Fatalf("batch of %d chars exceeds limit", len(b.Set))
		}
		joined = append(joined, b.Set)
		total += b.Count
	}
	if total != len(ids) {
		t.Fatalf("batches cover %d UIDs, want %d", total, len(ids))
	}
	if strings.Join(joined, ",") != setText(ranges) {
		t.Fatal("batch concatenation does not reproduce the input ranges")
	}
}

func TestBatchesSmallLimit(t *testing.T) {
	batches, err := Batches(Compress([]uint32{1, 5, 9}), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Batch{{Set: "1,5", Count: 2}, {Set: "9", Count: 1}}
	if !reflect.DeepEqual(batches, want) {
		t.Fatalf("got %v, want %v", batches, want)
	}
}

func TestBatchesOversizedRange(t *testing.T) {
	_, err := Batches([]Range{{Lo: 100000, Hi: 200000}}, 8)
	if !errors.Is(err, ErrCommandTooLarge) {
		t.Fatalf("expected ErrCommandTooLarge, got %v", err)
	}
}

func TestRangeCount(t *testing.T) {
	if got := (Range{Lo: 3, Hi: 3}).Count(); got != 1 {
		t.Fatalf("singleton count %d", got)
	}
	if got := (Range{Lo: 3, Hi: 7}).Count(); got != 5 {
		t.Fatalf("range count %d", got)
	}
}
