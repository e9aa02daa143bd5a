package piece

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aidenmarsh/torrentcore/config"
	"github.com/aidenmarsh/torrentcore/metainfo"
	"github.com/aidenmarsh/torrentcore/peer"
)

// SwarmStats mirrors the tracker's last-reported seeder/leecher counts
// (spec.md supplemented feature, see SPEC_FULL.md).
type SwarmStats struct {
	Complete   int
	Incomplete int
}

// ProgressFunc is invoked after every piece is written to disk.
type ProgressFunc func(piecesDone, piecesTotal int)

// Coordinator owns the piece table and file writer for one torrent and
// supervises the per-peer download workers.
type Coordinator struct {
	info   *metainfo.Info
	table  *Table
	writer *Writer
	cfg    config.Config

	statsMu sync.Mutex
	stats   SwarmStats

	onProgress ProgressFunc
}

// NewCoordinator builds the piece table from info's piece hashes and opens
// the output files. cfg's timeouts, block size, pipeline depth, and max
// peer count are threaded into every worker Run spawns.
func NewCoordinator(info *metainfo.Info, outDir string, cfg config.Config, onProgress ProgressFunc) (*Coordinator, error) {
	work := make([]Work, info.NumPieces())
	for i := range work {
		work[i] = Work{Index: i, Hash: info.Pieces[i], Length: info.PieceLen(i)}
	}
	writer, err := NewWriter(info, outDir)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		info:       info,
		table:      NewTable(work),
		writer:     writer,
		cfg:        cfg,
		onProgress: onProgress,
	}, nil
}

// SetSwarmStats records the most recent tracker-reported swarm size.
func (c *Coordinator) SetSwarmStats(complete, incomplete int) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = SwarmStats{Complete: complete, Incomplete: incomplete}
}

// Stats returns the last-recorded swarm statistics.
func (c *Coordinator) Stats() SwarmStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close closes the underlying output files. Call once downloading is done.
func (c *Coordinator) Close() error {
	return c.writer.Close()
}

// BytesLeft returns the number of bytes still missing, for the tracker
// announce's "left" parameter.
func (c *Coordinator) BytesLeft() int64 {
	have := int64(c.table.CountHave())
	total := int64(c.table.Len())
	if total == 0 {
		return 0
	}
	// Only the last piece may be shorter than PieceLength, so this slightly
	// overcounts "left" until the final piece lands; acceptable since the
	// tracker only uses it as an estimate.
	return (total - have) * c.info.PieceLength
}

// Done reports whether every piece has been downloaded and verified.
func (c *Coordinator) Done() bool {
	return c.table.Done()
}

// Run dials every peer address and drives them concurrently until every
// piece is downloaded, ctx is cancelled, or every peer connection has ended.
// A single peer's failure (disconnect, hash mismatch) never aborts the
// others; callers check Done to tell a finished download from the last case.
func (c *Coordinator) Run(ctx context.Context, addresses []string, infoHash, selfID [20]byte) error {
	if len(addresses) == 0 {
		return newErr(NoPeersAvailable, -1, "no peer addresses supplied", nil)
	}

	results := make(chan Result)
	done := make(chan struct{})

	// The writer goroutine only returns once results is closed, which Run
	// does after every peer worker below has exited. Returning early here
	// (e.g. on table.Done()) would risk a worker blocking forever on a send
	// nobody is left to receive.
	var writeErr error
	go func() {
		defer close(done)
		piecesDone := 0
		for res := range results {
			if writeErr != nil {
				continue
			}
			if err := c.writer.WritePiece(res.Index, res.Data); err != nil {
				writeErr = err
				continue
			}
			piecesDone++
			if c.onProgress != nil {
				c.onProgress(piecesDone, c.table.Len())
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxPeers)
	for _, addr := range addresses {
		addr := addr
		g.Go(func() error {
			sess, err := peer.Dial(addr, infoHash, selfID, c.cfg.ConnectTimeout)
			if err != nil {
				log.Printf("skipping peer %s: %s", addr, err)
				return nil
			}
			defer sess.Close()

			errc := make(chan error, 1)
			go func() { errc <- runPeer(gctx, sess, c.table, results, c.cfg) }()

			select {
			case err := <-errc:
				if err != nil {
					log.Printf("disconnecting from peer %s: %s", addr, err)
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}

	waitErr := g.Wait()
	close(results)
	<-done

	if writeErr != nil {
		return writeErr
	}
	return waitErr
}
