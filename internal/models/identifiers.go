package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateOrderNumber returns ORD-<last 6 digits of unix millis>-<3 random chars>.
func GenerateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%06d-%s", now.UnixMilli()%1_000_000, randomString(3))
}

// GeneratePaymentReference returns PAY-<unix millis>-<6 random chars>.
func GeneratePaymentReference(now time.Time) string {
	return fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), randomString(6))
}

func randomString(n int) string {
	max := big.NewInt(int64(len(identifierAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(fmt.Sprintf("identifier generation: %v", err))
		}
		b[i] = identifierAlphabet[idx.Int64()]
	}
	return string(b)
}
