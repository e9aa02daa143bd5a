package piece

import (
	"bytes"
	"context"
	"crypto/sha1"
	"log"
	"time"

	"github.com/aidenmarsh/torrentcore/config"
	"github.com/aidenmarsh/torrentcore/peer"
	"github.com/aidenmarsh/torrentcore/wire"
)

// runPeer drives one peer connection: it sends Interested once, then
// repeatedly pulls pieces the peer has from table, waiting and retrying
// while none is available, until every piece is Have, the connection fails,
// or a piece fails verification (HashMismatch). ctx governs the waits and
// the results send so a cancellation never leaves this goroutine blocked on
// a channel nobody is draining anymore.
func runPeer(ctx context.Context, sess *peer.Session, table *Table, results chan<- Result, cfg config.Config) error {
	if err := sess.SendInterested(); err != nil {
		return err
	}

	// Wait for the peer to unchoke us, processing bitfield/have messages
	// meanwhile, before attempting any downloads.
	for sess.PeerChoking() {
		if _, err := sess.Next(); err != nil {
			return err
		}
	}

	for {
		work, ok := table.NextMissing(sess.HasPiece)
		if !ok {
			if table.Done() {
				return nil
			}
			// Every piece this peer has is Have or InFlight on another peer;
			// wait for one to be released or for the download to finish.
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		data, err := downloadPiece(sess, work, cfg)
		if err != nil {
			table.Release(work.Index)
			return err
		}

		sum := sha1.Sum(data)
		if !bytes.Equal(sum[:], work.Hash[:]) {
			log.Printf("piece %d failed hash verification from %s, retrying elsewhere", work.Index, sess.Address)
			table.Release(work.Index)
			return newErr(HashMismatch, work.Index, "piece failed hash verification", nil)
		}

		table.MarkHave(work.Index)
		sess.SendHave(work.Index)

		select {
		case results <- Result{Index: work.Index, Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Result is a fully downloaded and verified piece.
type Result struct {
	Index int
	Data  []byte
}

// downloadPiece pipelines block requests for one piece up to cfg.PipelineDepth
// deep, retiring each as its Piece message arrives (spec.md §4.6).
func downloadPiece(sess *peer.Session, work Work, cfg config.Config) ([]byte, error) {
	buf := make([]byte, work.Length)
	received := int64(0)
	nextOffset := int64(0)
	inFlight := 0

	sess.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
	defer sess.SetReadDeadline(time.Time{})

	for received < work.Length {
		for inFlight < cfg.PipelineDepth && nextOffset < work.Length {
			length := int64(cfg.BlockSize)
			if nextOffset+length > work.Length {
				length = work.Length - nextOffset
			}
			if err := sess.SendRequest(work.Index, int(nextOffset), int(length)); err != nil {
				return nil, newErr(RequestTimeout, work.Index, "sending request", err)
			}
			nextOffset += length
			inFlight++
		}

		msg, err := sess.Next()
		if err != nil {
			cancelRemaining(sess, work.Index, received, nextOffset, cfg.BlockSize)
			return nil, newErr(RequestTimeout, work.Index, "waiting for block", err)
		}
		if msg.Type != wire.MsgPiece {
			continue
		}
		block, err := wire.ParsePiece(msg)
		if err != nil {
			return nil, newErr(RequestTimeout, work.Index, "malformed piece message", err)
		}
		if block.Index != work.Index {
			continue
		}
		if int64(block.Begin)+int64(len(block.Block)) > work.Length {
			return nil, newErr(RequestTimeout, work.Index, "received block exceeds piece length", nil)
		}
		n := copy(buf[block.Begin:], block.Block)
		received += int64(n)
		inFlight--
		sess.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
	}
	return buf, nil
}

// cancelRemaining sends Cancel for every block still in flight when a piece
// is abandoned mid-download because waiting for the next block failed
// (read error or request timeout) (supplemented feature, see SPEC_FULL.md).
func cancelRemaining(sess *peer.Session, index int, from, to int64, blockSize int) {
	for off := from; off < to; off += int64(blockSize) {
		length := int64(blockSize)
		if off+length > to {
			length = to - off
		}
		sess.SendCancel(index, int(off), int(length))
	}
}
