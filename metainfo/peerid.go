package metainfo

import "crypto/rand"

// clientPrefix identifies this implementation in the Azureus-style peer ID
// convention: '-', two letters, four digits, '-'.
const clientPrefix = "-TC0100-"

// NewPeerID returns a fresh 20-byte peer ID: the client prefix followed by
// random bytes (spec.md §4.3).
func NewPeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], clientPrefix)
	if _, err := rand.Read(id[len(clientPrefix):]); err != nil {
		return id, err
	}
	return id, nil
}
