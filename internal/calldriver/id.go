package calldriver

import (
	"crypto/rand"
	"math/big"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const idLength = 20

// newCallID returns a 20-char mixed-case identifier used to namespace
// one call's resources (the robot channel's pre-declared id and the
// recording filename).
func newCallID() string {
	b := make([]byte, idLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			// crypto/rand failure is not recoverable; fall back to a
			// fixed position rather than panicking the caller.
			b[i] = idAlphabet[0]
			continue
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b)
}
