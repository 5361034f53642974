package transform

import (
	"golang.org/x/crypto/blake2b"

	"adaptiveclean/internal/dataset"
)

// Dedup removes rows that repeat an earlier row exactly. Nulls compare equal,
// order is stable and the first occurrence wins. Rows are bucketed by a
// BLAKE2b fingerprint and confirmed by value comparison.
func Dedup(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	buckets := make(map[[32]byte][]int, in.Len())
	rows := in.Rows()
	out := in.Filter(func(i int, r dataset.Row) bool {
		key := Fingerprint(r)
		for _, prev := range buckets[key] {
			if rowsEqual(rows[prev], r) {
				return false
			}
		}
		buckets[key] = append(buckets[key], i)
		return true
	})
	return out, Details{"duplicates_removed": in.Len() - out.Len()}, nil
}

// Fingerprint hashes a row's kinds and values.
func Fingerprint(r dataset.Row) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, v := range r {
		h.Write([]byte{byte(v.Kind())})
		h.Write([]byte(v.String()))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func rowsEqual(a, b dataset.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
