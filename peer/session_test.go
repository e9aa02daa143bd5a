package peer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidenmarsh/torrentcore/wire"
)

func sampleHash(seed byte) [20]byte {
	var h [20]byte
	for i := range h {
		h[i] = seed
	}
	return h
}

// fakeRemotePeer starts a TCP listener that performs one handshake and then
// hands the raw connection to onAccept for the test to drive further.
func fakeRemotePeer(t *testing.T, infoHash, remoteID [20]byte, onAccept func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := wire.ReadHandshake(conn); err != nil {
			return
		}
		out := wire.Handshake{InfoHash: infoHash, PeerID: remoteID}
		if _, err := conn.Write(out.Build()); err != nil {
			return
		}
		if onAccept != nil {
			onAccept(conn)
		}
	}()
	return ln.Addr().String()
}

func TestDialSuccessfulHandshake(t *testing.T) {
	infoHash := sampleHash(1)
	selfID := sampleHash(2)
	remoteID := sampleHash(3)

	addr := fakeRemotePeer(t, infoHash, remoteID, nil)
	sess, err := Dial(addr, infoHash, selfID, time.Second)
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, StateHandshook, sess.State())
}

func TestDialHandshakeMismatch(t *testing.T) {
	infoHash := sampleHash(1)
	wrongHash := sampleHash(0xFF)
	selfID := sampleHash(2)
	remoteID := sampleHash(3)

	addr := fakeRemotePeer(t, wrongHash, remoteID, nil)
	_, err := Dial(addr, infoHash, selfID, time.Second)
	require.Error(t, err)
	var peerErr *Error
	require.ErrorAs(t, err, &peerErr)
	assert.Equal(t, HandshakeMismatch, peerErr.Kind)
}

func TestSessionTracksBitfieldAndChoking(t *testing.T) {
	infoHash := sampleHash(1)
	selfID := sampleHash(2)
	remoteID := sampleHash(3)

	addr := fakeRemotePeer(t, infoHash, remoteID, func(conn net.Conn) {
		conn.Write(wire.BitfieldMsg(wire.Bitfield{0b10000000}).Serialise())
		conn.Write(wire.Unchoke().Serialise())
		time.Sleep(50 * time.Millisecond)
	})

	sess, err := Dial(addr, infoHash, selfID, time.Second)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Next() // bitfield
	require.NoError(t, err)
	assert.Equal(t, StateReady, sess.State())
	assert.True(t, sess.HasPiece(0))
	assert.False(t, sess.HasPiece(1))
	assert.True(t, sess.PeerChoking())

	_, err = sess.Next() // unchoke
	require.NoError(t, err)
	assert.False(t, sess.PeerChoking())
	assert.Equal(t, StateUnchoked, sess.State())
}

func TestSessionIgnoresBitfieldAfterFirstMessage(t *testing.T) {
	infoHash := sampleHash(1)
	selfID := sampleHash(2)
	remoteID := sampleHash(3)

	addr := fakeRemotePeer(t, infoHash, remoteID, func(conn net.Conn) {
		conn.Write(wire.Unchoke().Serialise())
		conn.Write(wire.BitfieldMsg(wire.Bitfield{0b10000000}).Serialise())
		time.Sleep(50 * time.Millisecond)
	})

	sess, err := Dial(addr, infoHash, selfID, time.Second)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Next() // unchoke, the first post-handshake message
	require.NoError(t, err)

	_, err = sess.Next() // a late bitfield, must be ignored
	require.NoError(t, err)
	assert.False(t, sess.HasPiece(0))
	assert.NotEqual(t, StateReady, sess.State())
}

func TestSendInterestedAdvancesState(t *testing.T) {
	infoHash := sampleHash(1)
	selfID := sampleHash(2)
	remoteID := sampleHash(3)

	received := make(chan *wire.Message, 1)
	addr := fakeRemotePeer(t, infoHash, remoteID, func(conn net.Conn) {
		msg, err := wire.ReadMessage(conn)
		if err == nil {
			received <- msg
		}
	})

	sess, err := Dial(addr, infoHash, selfID, time.Second)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.SendInterested())
	assert.Equal(t, StateInterested, sess.State())

	select {
	case msg := <-received:
		assert.Equal(t, wire.MsgInterested, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interested message")
	}
}
