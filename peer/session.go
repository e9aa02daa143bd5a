package peer

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/aidenmarsh/torrentcore/wire"
)

// Session is a connection to a single remote peer and its negotiated state.
// All mutable fields are guarded by mu so that the read loop (driven by the
// owning worker) and any concurrent Send* calls never race.
type Session struct {
	Address        string
	conn           net.Conn
	infoHash       [20]byte
	selfID         [20]byte
	connectTimeout time.Duration

	mu             sync.Mutex
	state          State
	bitfield       wire.Bitfield
	sawFirstMsg    bool
	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool
}

// Dial opens a TCP connection to address and performs the handshake,
// verifying the remote's info hash matches infoHash exactly
// (HandshakeMismatch otherwise). It does not wait for the peer's bitfield;
// callers drive that via ReadMessage/Next. connectTimeout bounds both the
// dial and the handshake round trip.
func Dial(address string, infoHash, selfID [20]byte, connectTimeout time.Duration) (*Session, error) {
	conn, err := net.DialTimeout("tcp", address, connectTimeout)
	if err != nil {
		return nil, newErr(ConnectFailed, address, "dial failed", err)
	}

	s := &Session{
		Address:        address,
		conn:           conn,
		infoHash:       infoHash,
		selfID:         selfID,
		connectTimeout: connectTimeout,
		state:          StateNew,
		amChoking:      true,
		peerChoking:    true,
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(s.connectTimeout))
	defer s.conn.SetDeadline(time.Time{})

	out := wire.Handshake{InfoHash: s.infoHash, PeerID: s.selfID}
	if _, err := s.conn.Write(out.Build()); err != nil {
		return newErr(ConnectFailed, s.Address, "writing handshake", err)
	}

	in, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return newErr(ProtocolViolation, s.Address, "reading handshake", err)
	}
	if in.InfoHash != s.infoHash {
		return newErr(HandshakeMismatch, s.Address, "info hash mismatch", nil)
	}

	s.mu.Lock()
	s.state = StateHandshook
	s.mu.Unlock()
	return nil
}

// State returns the session's current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasPiece reports whether the peer's last-known bitfield has index set.
func (s *Session) HasPiece(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitfield.Get(index)
}

// PeerChoking reports whether the remote peer is currently choking us.
func (s *Session) PeerChoking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerChoking
}

// Close tears down the underlying connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return s.conn.Close()
}

// SendInterested advances the local half of the handshake sequence and
// tells the peer we want pieces.
func (s *Session) SendInterested() error {
	s.mu.Lock()
	s.amInterested = true
	if s.state < StateInterested {
		s.state = StateInterested
	}
	s.mu.Unlock()
	_, err := s.conn.Write(wire.Interested().Serialise())
	if err != nil {
		return newErr(Closed, s.Address, "sending interested", err)
	}
	return nil
}

// SendRequest asks the peer for one block of a piece.
func (s *Session) SendRequest(index, begin, length int) error {
	_, err := s.conn.Write(wire.Request(index, begin, length).Serialise())
	if err != nil {
		return newErr(Closed, s.Address, "sending request", err)
	}
	return nil
}

// SendCancel cancels a previously sent request, e.g. when a piece download
// is abandoned mid-flight (spec.md supplemented feature).
func (s *Session) SendCancel(index, begin, length int) error {
	_, err := s.conn.Write(wire.Cancel(index, begin, length).Serialise())
	if err != nil {
		return newErr(Closed, s.Address, "sending cancel", err)
	}
	return nil
}

// SendHave announces that we finished downloading a piece.
func (s *Session) SendHave(index int) error {
	_, err := s.conn.Write(wire.Have(index).Serialise())
	if err != nil {
		return newErr(Closed, s.Address, "sending have", err)
	}
	return nil
}

// SetReadDeadline exposes the underlying connection's deadline so the
// piece worker can bound each request round trip (spec.md §4.6).
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

// Next reads and classifies the next non-keepalive wire message, applying
// its effect to session state (choke/unchoke/have/bitfield) before
// returning it. Piece and extended payloads are returned to the caller
// uninterpreted since their handling belongs to the piece coordinator.
func (s *Session) Next() (*wire.Message, error) {
	msg, err := wire.ReadMessage(s.conn)
	if err != nil {
		if errors.Is(err, wire.ErrFrameTooLarge) {
			return nil, newErr(ProtocolViolation, s.Address, "frame exceeds maximum length", err)
		}
		return nil, newErr(Closed, s.Address, "reading message", err)
	}

	s.mu.Lock()
	isFirstMsg := !s.sawFirstMsg
	s.sawFirstMsg = true
	s.mu.Unlock()

	switch msg.Type {
	case wire.MsgChoke:
		s.mu.Lock()
		s.peerChoking = true
		s.mu.Unlock()
	case wire.MsgUnchoke:
		s.mu.Lock()
		s.peerChoking = false
		if s.state < StateUnchoked {
			s.state = StateUnchoked
		}
		s.mu.Unlock()
	case wire.MsgInterested:
		s.mu.Lock()
		s.peerInterested = true
		s.mu.Unlock()
	case wire.MsgNotInterested:
		s.mu.Lock()
		s.peerInterested = false
		s.mu.Unlock()
	case wire.MsgHave:
		index, perr := wire.ParseHave(msg)
		if perr != nil {
			return nil, newErr(ProtocolViolation, s.Address, "malformed have", perr)
		}
		s.mu.Lock()
		if s.bitfield == nil {
			s.bitfield = wire.NewBitfield(index + 1)
		}
		s.bitfield.Set(index)
		s.mu.Unlock()
	case wire.MsgBitfield:
		// A bitfield is only meaningful as the very first message a peer
		// sends after the handshake; a later one is ignored rather than
		// clobbering what Have messages have since built up.
		if isFirstMsg {
			s.mu.Lock()
			s.bitfield = wire.Bitfield(append([]byte(nil), msg.Payload...))
			if s.state < StateReady {
				s.state = StateReady
			}
			s.mu.Unlock()
		}
	}
	return msg, nil
}
