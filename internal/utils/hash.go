package utils

import (
	"hash/fnv"
	"strconv"
	"unicode/utf16"
)

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Djb2Base36 is the 32-bit djb2 string hash over UTF-16 code units, sign
// dropped and rendered in base 36. It is not a cryptographic hash.
func Djb2Base36(s string) string {
	var h int32 = 5381
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*33 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
