// Command gotorrent is the CLI surface of spec.md §6: a thin dispatcher
// over the bencode, metainfo, tracker, peer and client packages. It is
// explicitly out of the core's scope (spec.md §1) — it exists only to let
// a human drive the core from a terminal.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mikeolsen/go-torrent-client/bencode"
	"github.com/mikeolsen/go-torrent-client/client"
	"github.com/mikeolsen/go-torrent-client/goerr"
	"github.com/mikeolsen/go-torrent-client/metainfo"
	"github.com/mikeolsen/go-torrent-client/peer"
	"github.com/mikeolsen/go-torrent-client/tracker"
)

// setVerbose toggles diagnostic logging on every component that exposes it.
func setVerbose(v bool) {
	tracker.SetVerbose(v)
	peer.SetVerbose(v)
	client.SetVerbose(v)
}

// listenPort is the informational port announced to the tracker; this
// client never actually listens (spec.md §4.3).
const listenPort uint16 = 6881

// run dispatches args[0] as the subcommand and returns its error, if any.
// All subcommand output goes to stdout; printing the error to stderr and
// choosing the exit code is the caller's responsibility.
func run(args []string, stdout io.Writer) error {
	args = parseVerboseFlag(args)
	if len(args) == 0 {
		return goerr.Usagef("missing subcommand")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "decode":
		return cmdDecode(rest, stdout)
	case "info":
		return cmdInfo(rest, stdout)
	case "peers":
		return cmdPeers(rest, stdout)
	case "handshake":
		return cmdHandshake(rest, stdout)
	case "download_piece":
		return cmdDownloadPiece(rest, stdout)
	case "download":
		return cmdDownload(rest, stdout)
	default:
		return goerr.Usagef("unknown command %q", cmd)
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseVerboseFlag strips a leading "-v" and enables verbose logging on
// every component, leaving the rest of the arguments untouched.
func parseVerboseFlag(args []string) []string {
	if len(args) > 0 && args[0] == "-v" {
		setVerbose(true)
		return args[1:]
	}
	return args
}

func generatePeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], "-GT0001-")
	if _, err := rand.Read(id[8:]); err != nil {
		return id, err
	}
	return id, nil
}

// cmdDecode renders a single bencoded value as JSON, with byte strings
// rendered as UTF-8 text (spec.md §6).
func cmdDecode(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return goerr.Usagef("decode: expected <bencoded-string>")
	}
	v, err := bencode.Decode([]byte(args[0]))
	if err != nil {
		return err
	}
	out, err := json.Marshal(toJSON(v))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func toJSON(v bencode.Value) any {
	switch v.Kind() {
	case bencode.KindInt:
		n, _ := v.Int64()
		return n
	case bencode.KindString:
		b, _ := v.Bytes()
		return string(b)
	case bencode.KindList:
		items, _ := v.ListItems()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toJSON(item)
		}
		return out
	case bencode.KindDict:
		entries, _ := v.Entries()
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			out[string(e.Key)] = toJSON(e.Value)
		}
		return out
	default:
		return nil
	}
}

// cmdInfo prints the four labelled lines plus one hex SHA-1 per piece
// (spec.md §6).
func cmdInfo(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return goerr.Usagef("info: expected <torrent-file>")
	}
	tf, err := metainfo.Open(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Tracker URL: %s\n", tf.Announce)
	fmt.Fprintf(stdout, "Length: %d\n", tf.Info.Length)
	fmt.Fprintf(stdout, "Info Hash: %s\n", hex.EncodeToString(tf.InfoHash[:]))
	fmt.Fprintf(stdout, "Piece Length: %d\n", tf.Info.PieceLength)
	fmt.Fprintln(stdout, "Piece Hashes:")
	for i := 0; i < tf.PieceCount(); i++ {
		h := tf.PieceHash(i)
		fmt.Fprintln(stdout, hex.EncodeToString(h[:]))
	}
	return nil
}

// cmdPeers prints one ip:port per line (spec.md §6).
func cmdPeers(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return goerr.Usagef("peers: expected <torrent-file>")
	}
	tf, err := metainfo.Open(args[0])
	if err != nil {
		return err
	}
	peerID, err := generatePeerID()
	if err != nil {
		return err
	}
	peers, err := tracker.RequestPeers(context.Background(), tf, peerID, listenPort)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Fprintln(stdout, p.String())
	}
	return nil
}

// cmdHandshake prints "Peer ID: <40-hex>" (spec.md §6).
func cmdHandshake(args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return goerr.Usagef("handshake: expected <torrent-file> <ip>:<port>")
	}
	tf, err := metainfo.Open(args[0])
	if err != nil {
		return err
	}
	peerID, err := generatePeerID()
	if err != nil {
		return err
	}
	remoteID, err := peer.Handshake(context.Background(), args[1], peerID, tf.InfoHash)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Peer ID: %s\n", hex.EncodeToString(remoteID[:]))
	return nil
}

// parseOutFlag recognizes a leading "-o <out-file>" pair ahead of the
// remaining positional arguments (spec.md §6's table).
func parseOutFlag(args []string) (outFile string, rest []string, err error) {
	if len(args) >= 2 && args[0] == "-o" {
		return args[1], args[2:], nil
	}
	return "", args, goerr.Usagef("expected -o <out-file>")
}

// cmdDownloadPiece writes one verified piece to -o <out-file> (spec.md §6).
// Per spec.md §9's resolution of the source's peers[0]/peers[1]
// inconsistency, any peer may be used for this path; this implementation
// uses peers[0].
func cmdDownloadPiece(args []string, stdout io.Writer) error {
	outFile, rest, err := parseOutFlag(args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return goerr.Usagef("download_piece: expected -o <out-file> <torrent-file> <piece-index>")
	}
	torrentPath, indexStr := rest[0], rest[1]
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		return goerr.Usagef("download_piece: invalid piece index %q", indexStr)
	}

	tf, err := metainfo.Open(torrentPath)
	if err != nil {
		return err
	}
	peerID, err := generatePeerID()
	if err != nil {
		return err
	}
	ctx := context.Background()
	peers, err := tracker.RequestPeers(ctx, tf, peerID, listenPort)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return goerr.Trackerf("no peers available")
	}

	buf, err := client.DownloadSinglePiece(ctx, tf, peers[0].String(), peerID, index)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, buf, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Piece %d downloaded to %s.\n", index, outFile)
	return nil
}

// cmdDownload writes the full verified file to -o <out-file> (spec.md §6).
func cmdDownload(args []string, stdout io.Writer) error {
	outFile, rest, err := parseOutFlag(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return goerr.Usagef("download: expected -o <out-file> <torrent-file>")
	}
	torrentPath := rest[0]

	tf, err := metainfo.Open(torrentPath)
	if err != nil {
		return err
	}
	peerID, err := generatePeerID()
	if err != nil {
		return err
	}
	ctx := context.Background()
	peers, err := tracker.RequestPeers(ctx, tf, peerID, listenPort)
	if err != nil {
		return err
	}

	buf, err := client.Download(ctx, tf, peers, peerID, client.DefaultConcurrency)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, buf, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Downloaded %s to %s.\n", tf.Info.Name, outFile)
	return nil
}
