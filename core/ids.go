package core

import (
	"encoding/hex"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// shortIDLength is the number of characters kept from a generated UUID.
const shortIDLength = 8

// NewShortID returns a short random identifier used for documents and conversations.
func NewShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shortIDLength]
}

// ChecksumFromContent returns a hex BLAKE2b-64 digest of data.
// Identical uploads produce identical checksums.
func ChecksumFromContent(data []byte) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
