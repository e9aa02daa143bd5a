package tracker

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"github.com/aidenmarsh/torrentcore/bencode"
)

// Peer is one IPv4 address/port pair returned by a tracker (spec.md §3).
type Peer struct {
	IP   net.IP
	Port uint16
}

// String renders the peer as a dialable "ip:port" address.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the tracker's reply to an announce (spec.md §4.4).
type Response struct {
	Interval int
	// MinInterval is BEP 3's optional floor for re-announce frequency;
	// zero when absent (supplemented feature, see SPEC_FULL.md).
	MinInterval int
	// TrackerID, when present, must be echoed on every subsequent
	// announce to this tracker (supplemented feature).
	TrackerID  string
	Complete   int
	Incomplete int
	Peers      []Peer
}

// parseCompactPeers decodes a BEP 23 compact peer list: 6 bytes per peer,
// 4-byte IPv4 address followed by a 2-byte big-endian port.
func parseCompactPeers(raw []byte) ([]Peer, error) {
	const peerSize = 6
	if len(raw)%peerSize != 0 {
		return nil, newErr(Protocol, fmt.Sprintf("compact peers length %d not divisible by %d", len(raw), peerSize), nil)
	}
	peers := make([]Peer, len(raw)/peerSize)
	for i := range peers {
		off := i * peerSize
		ip := net.IPv4(raw[off], raw[off+1], raw[off+2], raw[off+3])
		port := binary.BigEndian.Uint16(raw[off+4 : off+6])
		peers[i] = Peer{IP: ip, Port: port}
	}
	return peers, nil
}

// parseDictPeers decodes the non-compact peer list form: a bencode list of
// dictionaries, each with optional "peer id", required "ip" and "port"
// (spec.md §4.4).
func parseDictPeers(list []bencode.Value) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for _, item := range list {
		dict, err := item.AsDict()
		if err != nil {
			return nil, newErr(Protocol, "non-compact peer entry is not a dictionary", err)
		}
		ipVal, ok := dict["ip"]
		if !ok {
			return nil, newErr(Protocol, "non-compact peer entry missing \"ip\"", nil)
		}
		ipStr, err := ipVal.AsString()
		if err != nil {
			return nil, newErr(Protocol, "non-compact peer \"ip\" is not a string", err)
		}
		ip := net.ParseIP(string(ipStr))
		if ip == nil {
			return nil, newErr(Protocol, fmt.Sprintf("invalid ip %q", ipStr), nil)
		}
		portVal, ok := dict["port"]
		if !ok {
			return nil, newErr(Protocol, "non-compact peer entry missing \"port\"", nil)
		}
		port, err := portVal.AsInt()
		if err != nil {
			return nil, newErr(Protocol, "non-compact peer \"port\" is not an integer", err)
		}
		peers = append(peers, Peer{IP: ip, Port: uint16(port)})
	}
	return peers, nil
}

// parseBencodeResponse decodes a full tracker HTTP response body
// (spec.md §4.4).
func parseBencodeResponse(v *bencode.Value) (*Response, error) {
	dict, err := v.AsDict()
	if err != nil {
		return nil, newErr(Protocol, "tracker response is not a dictionary", err)
	}

	if failure, ok := dict["failure reason"]; ok {
		reason, _ := failure.AsString()
		return nil, newErr(Failure, string(reason), nil)
	}

	interval, err := intOr(dict, "interval", 0)
	if err != nil {
		return nil, newErr(Protocol, "bad \"interval\"", err)
	}
	if interval == 0 {
		return nil, newErr(Protocol, "tracker response missing \"interval\"", nil)
	}
	minInterval, _ := intOr(dict, "min interval", 0)
	complete, _ := intOr(dict, "complete", 0)
	incomplete, _ := intOr(dict, "incomplete", 0)

	var trackerID string
	if v, ok := dict["tracker id"]; ok {
		if s, err := v.AsString(); err == nil {
			trackerID = string(s)
		}
	}

	peersVal, ok := dict["peers"]
	if !ok {
		return nil, newErr(Protocol, "tracker response missing \"peers\"", nil)
	}
	var peers []Peer
	if raw, err := peersVal.AsString(); err == nil {
		peers, err = parseCompactPeers(raw)
		if err != nil {
			return nil, err
		}
	} else if list, err := peersVal.AsList(); err == nil {
		peers, err = parseDictPeers(list)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, newErr(Protocol, "\"peers\" is neither a string nor a list", nil)
	}

	return &Response{
		Interval:    int(interval),
		MinInterval: int(minInterval),
		TrackerID:   trackerID,
		Complete:    int(complete),
		Incomplete:  int(incomplete),
		Peers:       peers,
	}, nil
}

func intOr(dict map[string]bencode.Value, key string, fallback int64) (int64, error) {
	v, ok := dict[key]
	if !ok {
		return fallback, nil
	}
	return v.AsInt()
}
