package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashContent computes the content hash used for spec equality checks.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// SanitizeKey derives a storage-safe key from a (fileKey, nodeId) pair.
// The mapping is a pure function of its inputs and collision-free: each
// part is percent-encoded over the alphabet [A-Za-z0-9.-] (so the encoded
// parts never contain '_') and the parts are joined with '_'.
func SanitizeKey(fileKey, nodeID string) (string, error) {
	if fileKey == "" {
		return "", fmt.Errorf("file key cannot be empty")
	}
	if nodeID == "" {
		return "", fmt.Errorf("node id cannot be empty")
	}
	return EncodePart(fileKey) + "_" + EncodePart(nodeID), nil
}

// EncodePart percent-encodes a single key component. Exposed so stores can
// build prefix scans over all nodes of one file.
func EncodePart(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '.' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
