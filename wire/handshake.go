package wire

import (
	"fmt"
	"io"
)

// Protocol is the fixed pstr identifying the wire protocol (spec.md §4.5).
const Protocol = "BitTorrent protocol"

// HandshakeLen is the fixed on-wire length of a handshake message.
const HandshakeLen = 1 + len(Protocol) + 8 + 20 + 20

// Handshake is the 68-byte message exchanged before any other traffic.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Build serialises the handshake with all 8 reserved bytes left zero; this
// module implements no extension protocol (spec.md Non-goals).
func (h Handshake) Build() []byte {
	buf := make([]byte, HandshakeLen)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	copy(buf[1+len(Protocol)+8:], h.InfoHash[:])
	copy(buf[1+len(Protocol)+8+20:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a handshake off the wire. It does not
// check the info hash against an expectation; callers compare InfoHash
// themselves so they can report a HandshakeMismatch with context.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading handshake: %w", err)
	}
	pstrlen := int(buf[0])
	if 1+pstrlen+8+20+20 != HandshakeLen || pstrlen != len(Protocol) {
		return nil, fmt.Errorf("unexpected protocol string length %d", pstrlen)
	}
	if string(buf[1:1+pstrlen]) != Protocol {
		return nil, fmt.Errorf("unexpected protocol %q", buf[1:1+pstrlen])
	}
	var h Handshake
	copy(h.InfoHash[:], buf[1+pstrlen+8:1+pstrlen+8+20])
	copy(h.PeerID[:], buf[1+pstrlen+8+20:])
	return &h, nil
}
