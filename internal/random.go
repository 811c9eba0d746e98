package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
)

const otpCodeSpan = 900000 // codes are uniform over [100000, 999999]

var otpSpanBig = big.NewInt(otpCodeSpan)

func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpanBig)
	if err != nil {
		return "", err
	}

	code := n.Int64() + 100000
	buf := [6]byte{}
	for i := 5; i >= 0; i-- {
		buf[i] = byte('0' + code%10)
		code /= 10
	}
	return string(buf[:]), nil
}

func HashOTPCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// HashToken is the storage form of any bearer token string. Only the digest
// ever reaches a durable store.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func NewRandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid random size")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
