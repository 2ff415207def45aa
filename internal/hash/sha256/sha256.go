// Package sha256 computes content hashes for harvested documents.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
)

// Hasher digests the JSON encoding of a document. Equal documents always
// produce equal digests because the encoding is deterministic.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashDocument encodes doc and returns the encoding with its digest.
func (h *Hasher) HashDocument(doc datacite.Document) ([]byte, string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("encode document: %w", err)
	}
	return body, h.Hash(body), nil
}
