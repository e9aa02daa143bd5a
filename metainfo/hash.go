package metainfo

import (
	"crypto/sha1"
	"path/filepath"

	"github.com/aidenmarsh/torrentcore/bencode"
)

// sha1InfoHash computes the torrent's identity: SHA-1 over the exact bytes
// of the info sub-dictionary as it appeared in the metainfo file
// (spec.md §3, §4.3). This is the only place piece geometry ties back to
// a specific byte range rather than a re-encoded approximation.
func sha1InfoHash(infoBytes []byte) [20]byte {
	return sha1.Sum(infoBytes)
}

func joinPath(segments []bencode.Value) (string, error) {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		s, err := seg.AsString()
		if err != nil {
			return "", err
		}
		parts[i] = string(s)
	}
	return filepath.Join(parts...), nil
}
