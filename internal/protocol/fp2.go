package protocol

import (
	"fmt"
	"math"
)

const fp2MaxMantissa = 0x1FFF

var pow10 = [4]float64{1, 10, 100, 1000}

// DecodeFP2 expands the two-byte Campbell float: 13-bit mantissa, 2-bit
// negative decimal exponent, sign in the top bit.
func DecodeFP2(raw uint16) float64 {
	mant := float64(raw & fp2MaxMantissa)
	exp := (raw >> 13) & 0x3
	v := mant / pow10[exp]
	if raw&0x8000 != 0 {
		v = -v
	}
	return v
}

// EncodeFP2 packs f with the largest decimal exponent whose rounded
// mantissa still fits.
func EncodeFP2(f float64) (uint16, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: FP2 %v", ErrValueRange, f)
	}
	var sign uint16
	if math.Signbit(f) {
		sign = 0x8000
		f = -f
	}
	for exp := 3; exp >= 0; exp-- {
		m := math.Round(f * pow10[exp])
		if m <= fp2MaxMantissa {
			return sign | uint16(exp)<<13 | uint16(m), nil
		}
	}
	return 0, fmt.Errorf("%w: FP2 %v", ErrValueRange, f)
}
