package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aidenmarsh/torrentcore/config"
	"github.com/aidenmarsh/torrentcore/metainfo"
	"github.com/aidenmarsh/torrentcore/piece"
	"github.com/aidenmarsh/torrentcore/progress"
	"github.com/aidenmarsh/torrentcore/tracker"
)

func main() {
	const (
		torrentDescription = "Required: path of the torrent file."
		outDescription      = "Optional: path of the output directory.\nIf not set, files are downloaded next to the torrent file."
		uiDescription        = "Optional: address to serve the progress websocket on, e.g. :8080. If empty, no UI server is started."
	)
	var torrentPath string
	var outPath string
	var uiAddr string

	flag.StringVar(&torrentPath, "f", "", torrentDescription)
	flag.StringVar(&torrentPath, "file", "", torrentDescription)
	flag.StringVar(&outPath, "o", "", outDescription)
	flag.StringVar(&outPath, "output", "", outDescription)
	flag.StringVar(&uiAddr, "ui", "", uiDescription)
	flag.Parse()

	if torrentPath == "" {
		fmt.Fprintln(os.Stderr, "please provide a path for the torrent file")
		os.Exit(1)
	}

	if err := run(torrentPath, outPath, uiAddr); err != nil {
		log.Fatal(err)
	}
}

func run(torrentPath, outPath, uiAddr string) error {
	cfg := config.Default()
	peerID, err := metainfo.NewPeerID()
	if err != nil {
		return fmt.Errorf("generating peer id: %w", err)
	}
	cfg.PeerID = peerID

	raw, err := os.ReadFile(torrentPath)
	if err != nil {
		return fmt.Errorf("reading torrent file: %w", err)
	}
	m, err := metainfo.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing torrent file: %w", err)
	}

	outDir := outPath
	if outDir == "" {
		outDir = filepath.Dir(torrentPath)
	}
	if m.Info.Multi() {
		outDir = filepath.Join(outDir, m.Info.Name)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var hub *progress.Hub
	if uiAddr != "" {
		hub = progress.NewHub()
		stop := make(chan struct{})
		go hub.Run(stop)
		go func() {
			log.Printf("serving progress UI on %s", uiAddr)
			if err := http.ListenAndServe(uiAddr, hub); err != nil {
				log.Printf("progress UI server stopped: %s", err)
			}
		}()
	}

	client := tracker.NewClient(m.AnnounceList)
	announceReq := tracker.AnnounceRequest{
		InfoHash: m.InfoHash,
		PeerID:   cfg.PeerID,
		Port:     6881,
		Left:     m.Info.TotalLength,
		Event:    tracker.EventStarted,
		NumWant:  cfg.NumWant,
	}
	responses, err := client.AnnounceAll(announceReq)
	if err != nil {
		return fmt.Errorf("announcing to trackers: %w", err)
	}

	seen := map[string]struct{}{}
	var addresses []string
	for _, resp := range responses {
		for _, p := range resp.Peers {
			addr := p.String()
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			addresses = append(addresses, addr)
		}
	}
	log.Printf("received %d unique peers from %d tracker(s)", len(addresses), len(responses))

	onProgress := func(done, total int) {
		log.Printf("downloaded %d/%d pieces", done, total)
		if hub != nil {
			hub.Publish(progress.Update{
				InfoHash:    fmt.Sprintf("%x", m.InfoHash),
				PiecesDone:  done,
				PiecesTotal: total,
				Peers:       len(addresses),
				Complete:    done == total,
			})
		}
	}

	coord, err := piece.NewCoordinator(m.Info, outDir, cfg, onProgress)
	if err != nil {
		return fmt.Errorf("setting up download: %w", err)
	}
	defer coord.Close()

	if err := coord.Run(context.Background(), addresses, m.InfoHash, cfg.PeerID); err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	if !coord.Done() {
		return fmt.Errorf("downloading: every peer disconnected before all pieces were verified")
	}

	announceReq.Event = tracker.EventCompleted
	announceReq.Left = 0
	if _, err := client.AnnounceAll(announceReq); err != nil {
		log.Printf("final announce failed: %s", err)
	}

	log.Printf("download complete: %s", m.Info.Name)
	return nil
}
