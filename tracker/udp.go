package tracker

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"
)

// udpProtocolID is the BEP 15 magic constant identifying a connect request.
const udpProtocolID uint64 = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
	actionError    uint32 = 3
)

// udpBackoffMax is the number of retries after which BEP 15 gives up
// (15*2^n seconds for n = 0..8, spec.md §4.4).
const udpBackoffMax = 8

func udpBackoff(n int) time.Duration {
	return time.Duration(15*(1<<uint(n))) * time.Second
}

// udpConn pairs a UDP socket with the tracker's connection ID, which is
// valid for 60 seconds; announce reuses it within that window and
// reconnects once it has expired. announceUDP opens a new udpConn, and so
// performs a new connect, for every call; connection IDs are not kept
// between announceUDP calls.
type udpConn struct {
	sock         net.Conn
	connectionID uint64
	obtainedAt   time.Time
}

func (u *udpConn) expired() bool {
	return time.Since(u.obtainedAt) >= 60*time.Second
}

func dialUDPTracker(trackerURL string) (*udpConn, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return nil, newErr(Network, "invalid tracker URL", err)
	}
	sock, err := net.Dial("udp", u.Host)
	if err != nil {
		return nil, newErr(Network, "udp dial failed", err)
	}
	conn := &udpConn{sock: sock}
	if err := conn.connect(); err != nil {
		sock.Close()
		return nil, err
	}
	return conn, nil
}

func (u *udpConn) close() {
	u.sock.Close()
}

// connect performs the BEP 15 connect handshake, retrying with exponential
// backoff on timeout.
func (u *udpConn) connect() error {
	txID := rand.Uint32()
	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], udpProtocolID)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	resp, err := u.roundTrip(req, 16)
	if err != nil {
		return err
	}
	action := binary.BigEndian.Uint32(resp[0:4])
	gotTx := binary.BigEndian.Uint32(resp[4:8])
	if gotTx != txID {
		return newErr(Protocol, "connect response transaction id mismatch", nil)
	}
	if action == actionError {
		return newErr(Failure, string(resp[8:]), nil)
	}
	if action != actionConnect {
		return newErr(Protocol, fmt.Sprintf("unexpected action %d in connect response", action), nil)
	}
	u.connectionID = binary.BigEndian.Uint64(resp[8:16])
	u.obtainedAt = time.Now()
	return nil
}

// announce performs a BEP 15 announce, reconnecting first if the connection
// ID has expired.
func (u *udpConn) announce(req AnnounceRequest) (*Response, error) {
	if u.expired() {
		if err := u.connect(); err != nil {
			return nil, err
		}
	}

	txID := rand.Uint32()
	pkt := make([]byte, 98)
	binary.BigEndian.PutUint64(pkt[0:8], u.connectionID)
	binary.BigEndian.PutUint32(pkt[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(pkt[12:16], txID)
	copy(pkt[16:36], req.InfoHash[:])
	copy(pkt[36:56], req.PeerID[:])
	binary.BigEndian.PutUint64(pkt[56:64], uint64(req.Downloaded))
	binary.BigEndian.PutUint64(pkt[64:72], uint64(req.Left))
	binary.BigEndian.PutUint64(pkt[72:80], uint64(req.Uploaded))
	binary.BigEndian.PutUint32(pkt[80:84], udpEventCode(req.Event))
	binary.BigEndian.PutUint32(pkt[84:88], 0) // IP address: default
	binary.BigEndian.PutUint32(pkt[88:92], rand.Uint32())
	numWant := int32(-1)
	if req.NumWant > 0 {
		numWant = int32(req.NumWant)
	}
	binary.BigEndian.PutUint32(pkt[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(pkt[96:98], uint16(req.Port))

	resp, err := u.roundTrip(pkt, 20)
	if err != nil {
		return nil, err
	}
	action := binary.BigEndian.Uint32(resp[0:4])
	gotTx := binary.BigEndian.Uint32(resp[4:8])
	if gotTx != txID {
		return nil, newErr(Protocol, "announce response transaction id mismatch", nil)
	}
	if action == actionError {
		return nil, newErr(Failure, string(resp[8:]), nil)
	}
	if action != actionAnnounce {
		return nil, newErr(Protocol, fmt.Sprintf("unexpected action %d in announce response", action), nil)
	}

	interval := binary.BigEndian.Uint32(resp[8:12])
	leechers := binary.BigEndian.Uint32(resp[12:16])
	seeders := binary.BigEndian.Uint32(resp[16:20])
	peers, err := parseCompactPeers(resp[20:])
	if err != nil {
		return nil, err
	}
	return &Response{
		Interval:   int(interval),
		Complete:   int(seeders),
		Incomplete: int(leechers),
		Peers:      peers,
	}, nil
}

func udpEventCode(e Event) uint32 {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

// roundTrip sends pkt and waits for a reply of at least minLen bytes,
// retrying with BEP 15's exponential backoff schedule on timeout.
func (u *udpConn) roundTrip(pkt []byte, minLen int) ([]byte, error) {
	buf := make([]byte, 2048)
	for n := 0; n <= udpBackoffMax; n++ {
		if _, err := u.sock.Write(pkt); err != nil {
			return nil, newErr(Network, "udp write failed", err)
		}
		u.sock.SetReadDeadline(time.Now().Add(udpBackoff(n)))
		read, err := u.sock.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return nil, newErr(Network, "udp read failed", err)
		}
		if read < minLen {
			return nil, newErr(Protocol, "udp response too short", nil)
		}
		return buf[:read], nil
	}
	return nil, newErr(Network, "udp tracker did not respond after exhausting backoff schedule", nil)
}

func announceUDP(trackerURL string, req AnnounceRequest) (*Response, error) {
	conn, err := dialUDPTracker(trackerURL)
	if err != nil {
		return nil, err
	}
	defer conn.close()
	return conn.announce(req)
}
