package tracker

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Client announces to one or more tracker URLs, dispatching by URL scheme.
type Client struct {
	AnnounceList []string
}

// NewClient builds a Client from a metainfo announce list (spec.md §4.4,
// BEP 12 multi-tracker support, supplemented feature per SPEC_FULL.md).
func NewClient(announceList []string) *Client {
	return &Client{AnnounceList: announceList}
}

// Announce queries a single tracker URL, dispatching to the HTTP(S) or UDP
// transport based on its scheme.
func Announce(trackerURL string, req AnnounceRequest) (*Response, error) {
	switch {
	case strings.HasPrefix(trackerURL, "http://"), strings.HasPrefix(trackerURL, "https://"):
		return announceHTTP(trackerURL, req)
	case strings.HasPrefix(trackerURL, "udp://"):
		return announceUDP(trackerURL, req)
	default:
		return nil, newErr(Protocol, fmt.Sprintf("unsupported tracker scheme: %s", trackerURL), nil)
	}
}

// AnnounceAll queries every tracker in the list concurrently and returns the
// responses that succeeded, in no particular order. A tracker that errors
// does not fail the others; AnnounceAll only errors if every tracker fails.
// Concurrency is bounded and supervised with errgroup (SPEC_FULL.md DOMAIN
// STACK), mirroring the bounded worker-pool pattern used elsewhere in this
// module for peer and piece workers.
func (c *Client) AnnounceAll(req AnnounceRequest) ([]*Response, error) {
	if len(c.AnnounceList) == 0 {
		return nil, newErr(Protocol, "no announce URLs configured", nil)
	}

	results := make([]*Response, len(c.AnnounceList))
	errs := make([]error, len(c.AnnounceList))

	var g errgroup.Group
	g.SetLimit(8)
	for i, trackerURL := range c.AnnounceList {
		i, trackerURL := i, trackerURL
		g.Go(func() error {
			resp, err := Announce(trackerURL, req)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	// Errors are collected per-tracker above rather than propagated through
	// errgroup's own error, since one tracker failing should never cancel
	// the others (BEP 12 fan-out semantics).
	_ = g.Wait()

	var ok []*Response
	var lastErr error
	for i, r := range results {
		if r != nil {
			ok = append(ok, r)
		} else {
			lastErr = errs[i]
		}
	}
	if len(ok) == 0 {
		return nil, newErr(Network, "all trackers failed", lastErr)
	}
	return ok, nil
}
