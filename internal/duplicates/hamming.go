// -----------------------------------------------------------------------
// Hamming - Perceptual hash distance
// -----------------------------------------------------------------------

package duplicates

import (
	"math/bits"
	"strconv"
)

// IncomparableDistance marks hash pairs that cannot be compared (either
// side missing or malformed). It sorts above every real distance.
const IncomparableDistance = 999

// HammingDistance counts differing bits between two 64-bit perceptual
// hashes in 16-hex-digit form.
func HammingDistance(a, b string) int {
	if len(a) != 16 || len(b) != 16 {
		return IncomparableDistance
	}
	av, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return IncomparableDistance
	}
	bv, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return IncomparableDistance
	}
	return bits.OnesCount64(av ^ bv)
}
