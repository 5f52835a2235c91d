// Package client implements the download coordinator (spec.md §4.5): it
// schedules one fresh peer session per piece, bounds how many sessions run
// at once, and reassembles verified pieces in index order.
package client

import (
	"context"
	"io"
	"log"
	"os"
	"sync"

	"github.com/mikeolsen/go-torrent-client/goerr"
	"github.com/mikeolsen/go-torrent-client/metainfo"
	"github.com/mikeolsen/go-torrent-client/peer"
	"github.com/mikeolsen/go-torrent-client/tracker"
)

// DefaultConcurrency is the default global session cap K (spec.md §4.5).
const DefaultConcurrency = 3

// debugLog is silent by default; SetVerbose redirects it to stderr,
// matching the teacher's torrent/torrent.go logging idiom.
var debugLog = log.New(io.Discard, "", 0)

// SetVerbose toggles diagnostic logging for the download coordinator.
func SetVerbose(v bool) {
	if v {
		debugLog = log.New(os.Stderr, "[client] ", log.LstdFlags)
	} else {
		debugLog = log.New(io.Discard, "", 0)
	}
}

type pieceResult struct {
	index int
	buf   []byte
}

// Download runs the full scheduling policy of spec.md §4.5: for each piece
// index i, a fresh peer session is opened to peers[i % len(peers)]; at
// most concurrency sessions exist at once, enforced by a counting gate; if
// any task fails, the whole download fails with the first such error and
// all other outstanding sessions are cancelled promptly. On success the
// pieces are concatenated in index order.
func Download(ctx context.Context, tf metainfo.TorrentFile, peers []tracker.Peer, localPeerID [20]byte, concurrency int) ([]byte, error) {
	if len(peers) == 0 {
		return nil, goerr.Trackerf("no peers available")
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	n := tf.PieceCount()
	if n == 0 {
		return nil, nil
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	results := make(chan pieceResult)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-cctx.Done():
				return
			}
			defer func() { <-sem }()

			addr := peers[index%len(peers)].String()
			buf, err := downloadVerifiedPiece(cctx, tf, addr, localPeerID, index)
			if err != nil {
				debugLog.Printf("piece %d failed: %v", index, err)
				errs <- err
				cancel()
				return
			}
			debugLog.Printf("piece %d verified (%d bytes)", index, len(buf))
			select {
			case results <- pieceResult{index: index, buf: buf}:
			case <-cctx.Done():
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
		close(errs)
	}()

	pieces := make([][]byte, n)
	got := 0
	for r := range results {
		pieces[r.index] = r.buf
		got++
	}

	if got != n {
		if err := <-errs; err != nil {
			return nil, err
		}
		return nil, ctx.Err()
	}

	out := make([]byte, 0, tf.Info.Length)
	for _, p := range pieces {
		out = append(out, p...)
	}
	return out, nil
}

// DownloadSinglePiece opens exactly one fresh session to addr and returns
// the verified bytes of piece index (spec.md §9 — the download_piece CLI
// path may use any peer).
func DownloadSinglePiece(ctx context.Context, tf metainfo.TorrentFile, addr string, localPeerID [20]byte, index int) ([]byte, error) {
	return downloadVerifiedPiece(ctx, tf, addr, localPeerID, index)
}

func downloadVerifiedPiece(ctx context.Context, tf metainfo.TorrentFile, addr string, localPeerID [20]byte, index int) ([]byte, error) {
	c, err := peer.Dial(ctx, addr, localPeerID, tf.InfoHash)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	length := tf.PieceLength(index)
	blockSizes := metainfo.BlockSizes(length)
	return c.DownloadPiece(ctx, index, length, blockSizes, tf.PieceHash(index))
}
