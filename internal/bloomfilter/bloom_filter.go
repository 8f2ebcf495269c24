// Package bloomfilter builds the compact membership filters stored next to
// each imported package reference, so that cross-repo reference queries can
// skip dumps that never mention an identifier.
package bloomfilter

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"hash/fnv"
	"io/ioutil"
	"math"

	"github.com/pkg/errors"
)

// falsePositiveRate is the membership error the filters are sized for.
const falsePositiveRate = 0.01

const bucketBits = 64

// Filter is a decoded bloom filter. The zero value is not usable; construct
// filters with New or Decode.
type Filter struct {
	numHashFunctions uint32
	numBits          uint32
	buckets          []uint64
}

type encodedFilter struct {
	Version          int      `json:"version"`
	NumHashFunctions uint32   `json:"numHashFunctions"`
	NumBits          uint32   `json:"numBits"`
	Buckets          []uint64 `json:"buckets"`
}

const encodingVersion = 1

// New creates a filter containing the given values, sized so that
// membership tests on other values fail with probability around
// falsePositiveRate.
func New(values []string) *Filter {
	numBits, numHashFunctions := dimensions(len(values))

	filter := &Filter{
		numHashFunctions: numHashFunctions,
		numBits:          numBits,
		buckets:          make([]uint64, (numBits+bucketBits-1)/bucketBits),
	}
	for _, value := range values {
		filter.add(value)
	}

	return filter
}

// CreateFilter encodes a filter over the given values for storage.
func CreateFilter(values []string) ([]byte, error) {
	return New(values).Encode()
}

// Test reports whether value may be a member of the filter. False positives
// are possible, false negatives are not.
func (f *Filter) Test(value string) bool {
	h1, h2 := hashes(value)
	for i := uint32(0); i < f.numHashFunctions; i++ {
		bit := (h1 + i*h2) % f.numBits
		if f.buckets[bit/bucketBits]&(1<<(bit%bucketBits)) == 0 {
			return false
		}
	}

	return true
}

// Encode serializes the filter as gzipped JSON.
func (f *Filter) Encode() ([]byte, error) {
	content, err := json.Marshal(encodedFilter{
		Version:          encodingVersion,
		NumHashFunctions: f.numHashFunctions,
		NumBits:          f.numBits,
		Buckets:          f.buckets,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(content); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode inflates a filter previously produced by Encode.
func Decode(raw []byte) (*Filter, error) {
	gzipReader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "reading gzip-encoded filter")
	}

	content, err := ioutil.ReadAll(gzipReader)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing filter")
	}

	encoded := encodedFilter{}
	if err := json.Unmarshal(content, &encoded); err != nil {
		return nil, errors.Wrap(err, "unmarshalling filter")
	}
	if encoded.Version != encodingVersion {
		return nil, errors.Errorf("unexpected filter encoding version %d", encoded.Version)
	}

	return &Filter{
		numHashFunctions: encoded.NumHashFunctions,
		numBits:          encoded.NumBits,
		buckets:          encoded.Buckets,
	}, nil
}

func (f *Filter) add(value string) {
	h1, h2 := hashes(value)
	for i := uint32(0); i < f.numHashFunctions; i++ {
		bit := (h1 + i*h2) % f.numBits
		f.buckets[bit/bucketBits] |= 1 << (bit % bucketBits)
	}
}

// dimensions returns the bit and hash function counts for a filter over n
// values, from the standard sizing formulae.
func dimensions(n int) (numBits, numHashFunctions uint32) {
	if n < 1 {
		n = 1
	}

	m := math.Ceil(-float64(n) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2))
	if m < bucketBits {
		m = bucketBits
	}
	k := math.Round(m / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}

	return uint32(m), uint32(k)
}

// hashes derives the two base hashes used for double hashing. The second
// hash is forced odd so that the probe sequence covers the bit space.
func hashes(value string) (uint32, uint32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(value))
	h := hasher.Sum64()

	return uint32(h), uint32(h>>32) | 1
}
