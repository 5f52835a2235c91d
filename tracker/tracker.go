// Package tracker implements the HTTP tracker client (spec.md §4.3): it
// issues the GET request that announces this client to the swarm and
// decodes the compact peer list from the bencoded response.
package tracker

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/mikeolsen/go-torrent-client/bencode"
	"github.com/mikeolsen/go-torrent-client/goerr"
	"github.com/mikeolsen/go-torrent-client/metainfo"
)

// debugLog is silent by default; SetVerbose redirects it to stderr,
// matching the teacher's torrent/torrent.go logging idiom.
var debugLog = log.New(io.Discard, "", 0)

// SetVerbose toggles diagnostic logging for the tracker round trip.
func SetVerbose(v bool) {
	if v {
		debugLog = log.New(os.Stderr, "[tracker] ", log.LstdFlags)
	} else {
		debugLog = log.New(io.Discard, "", 0)
	}
}

// Peer is a compact peer endpoint: an IPv4 address and a port, decoded
// from the tracker's "peers" byte string in 6-byte groups (spec.md §3).
type Peer struct {
	IP   net.IP
	Port uint16
}

// String renders the peer as "ip:port", suitable for net.Dial.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// ParseCompactPeers decodes consecutive 6-byte records (4 bytes IPv4 + 2
// bytes big-endian port) into a Peer list, in the order given.
func ParseCompactPeers(raw []byte) ([]Peer, error) {
	const recordSize = 6
	if len(raw)%recordSize != 0 {
		return nil, goerr.Trackerf("compact peers length %d is not a multiple of %d", len(raw), recordSize)
	}
	n := len(raw) / recordSize
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		off := i * recordSize
		ip := make(net.IP, 4)
		copy(ip, raw[off:off+4])
		peers[i] = Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(raw[off+4 : off+6]),
		}
	}
	return peers, nil
}

// percentEncodeBytes percent-encodes every byte of b, including bytes that
// would otherwise be left unescaped by net/url — the tracker convention
// (spec.md §6) is that info_hash and peer_id are raw-byte percent-encoded,
// not URL query-escaped.
func percentEncodeBytes(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, '%', hex[c>>4], hex[c&0x0f])
	}
	return string(out)
}

// BuildAnnounceURL constructs the tracker GET URL for tf, announcing as
// peerID and listening (informationally) on port (spec.md §4.3).
func BuildAnnounceURL(tf metainfo.TorrentFile, peerID [20]byte, port uint16) (string, error) {
	base, err := url.Parse(tf.Announce)
	if err != nil {
		return "", goerr.Trackerf("parse announce URL %q: %v", tf.Announce, err)
	}
	params := url.Values{
		"port":       {strconv.Itoa(int(port))},
		"uploaded":   {"0"},
		"downloaded": {"0"},
		"compact":    {"1"},
		"left":       {strconv.Itoa(tf.Info.Length)},
	}
	base.RawQuery = params.Encode() +
		"&info_hash=" + percentEncodeBytes(tf.InfoHash[:]) +
		"&peer_id=" + percentEncodeBytes(peerID[:])
	return base.String(), nil
}

// response mirrors the fields of a tracker announce reply this client
// reads: the compact peer list, and an optional failure message.
type response struct {
	peers         []byte
	failureReason string
	hasFailure    bool
}

func parseResponse(body []byte) (response, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return response{}, goerr.Trackerf("decode tracker response: %v", err)
	}
	if reason, ok := v.Get("failure reason"); ok {
		if b, ok := reason.Bytes(); ok {
			return response{failureReason: string(b), hasFailure: true}, nil
		}
	}
	peersVal, ok := v.Get("peers")
	if !ok {
		return response{}, goerr.Trackerf("tracker response missing \"peers\"")
	}
	peers, ok := peersVal.Bytes()
	if !ok {
		return response{}, goerr.Trackerf("tracker response \"peers\" is not a byte string")
	}
	return response{peers: peers}, nil
}

// RequestPeers announces to tf.Announce and returns the swarm's compact
// peer list (spec.md §4.3). A non-2xx status, a decode failure, or an
// explicit "failure reason" all surface as a TrackerError.
func RequestPeers(ctx context.Context, tf metainfo.TorrentFile, peerID [20]byte, port uint16) ([]Peer, error) {
	announceURL, err := BuildAnnounceURL(tf, peerID, port)
	if err != nil {
		return nil, err
	}
	debugLog.Println("announcing to", tf.Announce)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, goerr.Trackerf("build tracker request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, goerr.TrackerWrap(err, "tracker request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.TrackerWrap(err, "read tracker response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, goerr.Trackerf("tracker returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	parsed, err := parseResponse(body)
	if err != nil {
		return nil, err
	}
	if parsed.hasFailure {
		return nil, goerr.Trackerf("tracker failure: %s", parsed.failureReason)
	}

	peers, err := ParseCompactPeers(parsed.peers)
	if err != nil {
		return nil, err
	}
	debugLog.Printf("tracker returned %d peers", len(peers))
	return peers, nil
}
