package tracker

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aidenmarsh/torrentcore/bencode"
)

// httpTimeout bounds a single HTTP(S) announce round trip.
const httpTimeout = 30 * time.Second

// AnnounceRequest carries the parameters common to both the HTTP and UDP
// transports (spec.md §4.4).
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	TrackerID  string
	NumWant    int
}

// Event is the optional tracker announce event (spec.md §4.4).
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

func (e Event) httpParam() string {
	switch e {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	default:
		return ""
	}
}

func announceHTTP(trackerURL string, req AnnounceRequest) (*Response, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return nil, newErr(Network, "invalid tracker URL", err)
	}

	q := url.Values{}
	// info_hash and peer_id are raw 20-byte values and MUST be
	// percent-encoded byte-for-byte, never their hex representation
	// (spec.md §4.4, §6). url.Values.Encode does this correctly for any
	// string, including one holding raw non-UTF8 bytes.
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.Itoa(req.Port))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	q.Set("compact", "1")
	if ev := req.Event.httpParam(); ev != "" {
		q.Set("event", ev)
	}
	if req.TrackerID != "" {
		q.Set("trackerid", req.TrackerID)
	}
	if req.NumWant > 0 {
		q.Set("numwant", strconv.Itoa(req.NumWant))
	}
	u.RawQuery = q.Encode()

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Get(u.String())
	if err != nil {
		return nil, newErr(Network, "GET failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: HTTPStatus, Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newErr(Network, "reading response body", err)
	}

	val, err := bencode.DecodeFull(body)
	if err != nil {
		return nil, newErr(Protocol, "invalid bencode in response", err)
	}
	return parseBencodeResponse(val)
}
