package bundles

import (
	"strconv"
	"testing"
)

func TestHashKey(t *testing.T) {
	// Pinned value: a change here breaks every previously written dump.
	if index := HashKey("100", 1000); index != 625 {
		t.Errorf("unexpected index. want=%d have=%d", 625, index)
	}
}

func TestHashKeyInBounds(t *testing.T) {
	ids := []ID{"", "1", "9999999999", "abcdefghijklmnopqrstuvwxyz", "f79b58b2-2fc1-461a-b842-71c2fbdbcb43"}

	for _, maxIndex := range []int{1, 2, 16, 1000} {
		for _, id := range ids {
			index := HashKey(id, maxIndex)
			if index < 0 || index >= maxIndex {
				t.Errorf("index out of bounds for id %q, maxIndex %d: %d", id, maxIndex, index)
			}
		}
	}
}

func TestHashKeyDistributes(t *testing.T) {
	// Sequential integer ids should not pile into a single chunk.
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[HashKey(ID(strconv.Itoa(i)), 10)]++
	}

	for index, count := range counts {
		if count > 500 {
			t.Errorf("chunk %d holds %d of 1000 ids", index, count)
		}
	}
}
