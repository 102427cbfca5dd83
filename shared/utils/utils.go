package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func HashText(text string) string {
	return HashContent([]byte(text))
}
