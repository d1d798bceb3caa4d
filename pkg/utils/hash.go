package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// SumSHA256 returns the SHA-256 checksum of the provided data.
func SumSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ContentHash returns the hex SHA-256 of data, used to detect unchanged snapshots.
func ContentHash(data []byte) string {
	sum := SumSHA256(data)
	return hex.EncodeToString(sum[:])
}
