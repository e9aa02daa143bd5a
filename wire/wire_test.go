package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var infoHash, peerID [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(peerID[:], "-TC0100-123456789012")

	h := Handshake{InfoHash: infoHash, PeerID: peerID}
	raw := h.Build()
	require.Len(t, raw, HandshakeLen)

	got, err := ReadHandshake(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, infoHash, got.InfoHash)
	assert.Equal(t, peerID, got.PeerID)
}

func TestReadHandshakeRejectsBadProtocol(t *testing.T) {
	raw := Handshake{}.Build()
	raw[0] = 4 // claim a 4-byte pstr while the buffer still holds 19
	_, err := ReadHandshake(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestMessageRoundTrip(t *testing.T) {
	msg := Request(3, 16384, 16384)
	raw := msg.Serialise()
	got, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, MsgRequest, got.Type)

	info, err := ParseRequest(got)
	require.NoError(t, err)
	assert.Equal(t, RequestInfo{Index: 3, Begin: 16384, Length: 16384}, info)
}

func TestReadMessageSkipsKeepAlives(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // keep-alive
	buf.Write([]byte{0, 0, 0, 0}) // another keep-alive
	buf.Write(Unchoke().Serialise())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgUnchoke, msg.Type)
}

func TestPieceMessageRoundTrip(t *testing.T) {
	block := []byte("some block data")
	msg := Piece(7, 32768, block)
	raw := msg.Serialise()
	got, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	pb, err := ParsePiece(got)
	require.NoError(t, err)
	assert.Equal(t, 7, pb.Index)
	assert.Equal(t, 32768, pb.Begin)
	assert.Equal(t, block, pb.Block)
}

func TestHaveRoundTrip(t *testing.T) {
	msg := Have(42)
	idx, err := ParseHave(msg)
	require.NoError(t, err)
	assert.Equal(t, 42, idx)
}

// Piece 0 is the high bit of byte 0 (spec.md §4.5).
func TestBitfieldBitOrder(t *testing.T) {
	bf := Bitfield{0b11001100, 0b10101010}
	expected := []bool{true, true, false, false, true, true, false, false, true, false, true, false, true, false, true, false}
	for i, want := range expected {
		assert.Equal(t, want, bf.Get(i), "bit %d", i)
	}
}

func TestBitfieldSetUnset(t *testing.T) {
	bf := NewBitfield(16)
	for i := 0; i < 16; i++ {
		assert.False(t, bf.Get(i))
		bf.Set(i)
		assert.True(t, bf.Get(i))
		bf.Unset(i)
		assert.False(t, bf.Get(i))
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrameLength+1)
	_, err := ReadMessage(bytes.NewReader(lenBuf[:]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}

func TestBitfieldOutOfRangeIsSafe(t *testing.T) {
	bf := NewBitfield(8)
	assert.False(t, bf.Get(-1))
	assert.False(t, bf.Get(1000))
	bf.Set(-1)
	bf.Set(1000)
}
