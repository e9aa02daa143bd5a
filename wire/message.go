package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength caps the length prefix ReadMessage will allocate for.
// The largest legitimate frame is a Piece message (block plus 8-byte
// header); a sane margin above that is enough, and anything past it is
// treated as a hostile or corrupt peer rather than trusted (spec.md §4.5).
const MaxFrameLength = 128 * 1024

// ErrFrameTooLarge is returned by ReadMessage when a peer's length prefix
// exceeds MaxFrameLength.
var ErrFrameTooLarge = errors.New("wire: frame length exceeds maximum")

// MessageType is the single-byte message id on the wire (spec.md §4.5).
type MessageType uint8

const (
	MsgChoke MessageType = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

func (t MessageType) String() string {
	switch t {
	case MsgChoke:
		return "Choke"
	case MsgUnchoke:
		return "Unchoke"
	case MsgInterested:
		return "Interested"
	case MsgNotInterested:
		return "NotInterested"
	case MsgHave:
		return "Have"
	case MsgBitfield:
		return "Bitfield"
	case MsgRequest:
		return "Request"
	case MsgPiece:
		return "Piece"
	case MsgCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Message is a single length-prefixed peer wire message. Keep-alives have
// no Message form: ReadMessage consumes them and never returns a nil
// Message with a nil error.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Serialise renders the message as a length-prefixed frame: 4-byte
// big-endian length (covering type + payload), 1-byte type, payload.
func (m *Message) Serialise() []byte {
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf, length)
	buf[4] = byte(m.Type)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one frame off the wire, transparently skipping
// keep-alive frames (length-prefix of zero) until a real message arrives.
func ReadMessage(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint32(lenBuf)
		if length == 0 {
			continue
		}
		if length > MaxFrameLength {
			return nil, ErrFrameTooLarge
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return &Message{Type: MessageType(body[0]), Payload: body[1:]}, nil
	}
}

func Choke() *Message        { return &Message{Type: MsgChoke} }
func Unchoke() *Message      { return &Message{Type: MsgUnchoke} }
func Interested() *Message   { return &Message{Type: MsgInterested} }
func NotInterested() *Message { return &Message{Type: MsgNotInterested} }

func Have(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{Type: MsgHave, Payload: payload}
}

func BitfieldMsg(bits Bitfield) *Message {
	return &Message{Type: MsgBitfield, Payload: []byte(bits)}
}

func Request(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{Type: MsgRequest, Payload: payload}
}

func Cancel(index, begin, length int) *Message {
	m := Request(index, begin, length)
	m.Type = MsgCancel
	return m
}

func Piece(index, begin int, block []byte) *Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return &Message{Type: MsgPiece, Payload: payload}
}

// ParseHave extracts the piece index from a Have message payload.
func ParseHave(m *Message) (int, error) {
	if m.Type != MsgHave || len(m.Payload) != 4 {
		return 0, fmt.Errorf("malformed have message")
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// RequestInfo is the decoded payload of a Request, Cancel, or the header of
// a Piece message.
type RequestInfo struct {
	Index  int
	Begin  int
	Length int
}

// ParseRequest decodes a Request or Cancel message payload.
func ParseRequest(m *Message) (RequestInfo, error) {
	if (m.Type != MsgRequest && m.Type != MsgCancel) || len(m.Payload) != 12 {
		return RequestInfo{}, fmt.Errorf("malformed request/cancel message")
	}
	return RequestInfo{
		Index:  int(binary.BigEndian.Uint32(m.Payload[0:4])),
		Begin:  int(binary.BigEndian.Uint32(m.Payload[4:8])),
		Length: int(binary.BigEndian.Uint32(m.Payload[8:12])),
	}, nil
}

// PieceBlock is the decoded payload of a Piece message.
type PieceBlock struct {
	Index int
	Begin int
	Block []byte
}

// ParsePiece decodes a Piece message payload.
func ParsePiece(m *Message) (PieceBlock, error) {
	if m.Type != MsgPiece || len(m.Payload) < 8 {
		return PieceBlock{}, fmt.Errorf("malformed piece message")
	}
	return PieceBlock{
		Index: int(binary.BigEndian.Uint32(m.Payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(m.Payload[4:8])),
		Block: m.Payload[8:],
	}, nil
}
