package sequence

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Alphabet excludes the look-alike characters 0, O, 1 and I.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomAlphaNumeric returns n characters drawn from Alphabet.
func RandomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range b {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[num.Int64()]
	}
	return string(b), nil
}

// TimestampSuffix returns the last n upper-cased base-36 digits of t in
// milliseconds, left padded with zeros.
func TimestampSuffix(t time.Time, n int) string {
	encoded := strings.ToUpper(strconv.FormatInt(t.UnixMilli(), 36))
	if len(encoded) >= n {
		return encoded[len(encoded)-n:]
	}
	return strings.Repeat("0", n-len(encoded)) + encoded
}
