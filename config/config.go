package config

import "time"

// Config threads every tunable of a download through the program
// explicitly; nothing here is read from a package-level global
// (SPEC_FULL.md ambient stack: configuration).
type Config struct {
	// PeerID identifies this client to trackers and peers.
	PeerID [20]byte

	// OutputDir is where downloaded files are written. Empty means the
	// torrent file's own directory.
	OutputDir string

	// ConnectTimeout bounds a single peer TCP dial.
	ConnectTimeout time.Duration
	// RequestTimeout bounds a single in-flight block request.
	RequestTimeout time.Duration
	// BlockSize is the length requested per block.
	BlockSize int
	// PipelineDepth is the number of outstanding requests kept per peer.
	PipelineDepth int
	// MaxPeers bounds how many peer connections are held open at once.
	MaxPeers int
	// NumWant is the number of peers requested per tracker announce.
	NumWant int
}

// Default returns a Config with the values spec.md and the BEPs it
// references treat as conventional defaults.
func Default() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		BlockSize:      16384,
		PipelineDepth:  5,
		MaxPeers:       50,
		NumWant:        50,
	}
}
