package quiz

import (
	"strconv"
	"unicode/utf16"
)

// LCG parameters (Numerical Recipes). Arithmetic is done in uint64 and reduced mod 2^32.
const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	lcgModulus    = 1 << 32
)

// hashSeed folds seed into a signed 32-bit integer with h = h*31 + c over its
// UTF-16 code units. int32 overflow wraps, which is the intended mod 2^32 fold.
func hashSeed(seed string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(c)
	}
	return h
}

// SeededRandom maps seed to a float in [0, 1). The same seed always yields the same value.
func SeededRandom(seed string) float64 {
	h := int64(hashSeed(seed))
	if h < 0 {
		h = -h // |MinInt32| = 2^31 fits in int64
	}
	next := (lcgMultiplier*uint64(h) + lcgIncrement) % lcgModulus
	return float64(next) / lcgModulus
}

// stepSeed derives the seed for swap step i from the running seed. A single LCG step maps
// neighbouring hashes to neighbouring floats, so the hash is mixed before it is re-encoded.
func stepSeed(seed string, i int) string {
	return strconv.FormatUint(uint64(mix32(uint32(hashSeed(seed))+uint32(i)*0x9e3779b9)), 36)
}

// mix32 is the murmur3 32-bit finalizer.
func mix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
