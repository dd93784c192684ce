package payment

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// BarcodeLength is the width of a generated bank slip barcode.
const BarcodeLength = 23

// NewBarcode builds a numeric slip barcode: a 3-digit bank code, a 7-digit
// sequence, the last 10 digits of the Unix millisecond time and 3 random
// digits. Collisions are unlikely but not impossible.
func NewBarcode(now time.Time) string {
	bankCode := rand.IntN(900) + 1
	sequence := rand.IntN(10_000_000)
	millis := now.UnixMilli() % 10_000_000_000
	if millis < 0 {
		millis = -millis
	}
	suffix := rand.IntN(1000)

	return fmt.Sprintf("%03d%07d%010d%03d", bankCode, sequence, millis, suffix)
}
