// Package peer implements the peer protocol engine (spec.md §4.4): the
// 68-byte handshake, length-prefixed message framing, the sequential
// block-request exchange, and SHA-1 piece verification. One Client is one
// TCP connection to one peer and is not reused across pieces (spec.md §3).
package peer

import (
	"context"
	"crypto/sha1"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/mikeolsen/go-torrent-client/goerr"
)

// debugLog is silent by default; SetVerbose redirects it to stderr,
// matching the teacher's torrent/torrent.go logging idiom.
var debugLog = log.New(io.Discard, "", 0)

// SetVerbose toggles diagnostic logging for peer sessions.
func SetVerbose(v bool) {
	if v {
		debugLog = log.New(os.Stderr, "[peer] ", log.LstdFlags)
	} else {
		debugLog = log.New(io.Discard, "", 0)
	}
}

const (
	dialTimeout      = 3 * time.Second
	handshakeTimeout = 3 * time.Second
	bitfieldTimeout  = 5 * time.Second
	pieceTimeout     = 60 * time.Second
)

// Client is a single peer session: one TCP connection, from handshake
// through (optionally) a piece download, to close (spec.md §3, §4.4).
type Client struct {
	Conn       net.Conn
	RemoteID   [20]byte
	addr       string
	cancelConn context.CancelFunc
}

// Dial opens a TCP connection to addr, performs the handshake, and waits
// for the peer's initial BITFIELD and UNCHOKE (spec.md §4.4's
// CONNECTED → HANDSHAKED → BITFIELD_RECEIVED → INTERESTED_SENT → UNCHOKED
// sequence). The returned Client is ready to download exactly one piece.
//
// If ctx is cancelled while the session is alive, the underlying socket is
// closed promptly (spec.md §5's cancellation requirement) — net.Conn has
// no native context support, so a small watcher goroutine bridges the gap.
func Dial(ctx context.Context, addr string, localPeerID, infoHash [20]byte) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, goerr.HandshakeWrap(err, "dial %s", addr)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	go func() {
		<-watchCtx.Done()
		conn.Close()
	}()

	c := &Client{Conn: conn, addr: addr, cancelConn: cancelWatch}

	if err := c.handshake(localPeerID, infoHash); err != nil {
		c.Close()
		return nil, err
	}
	debugLog.Println("handshake complete with", addr)

	if err := c.awaitBitfield(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.sendMessage(&Message{ID: MsgInterested}); err != nil {
		c.Close()
		return nil, goerr.ProtocolWrap(err, "send INTERESTED")
	}

	if err := c.awaitUnchoke(); err != nil {
		c.Close()
		return nil, err
	}
	debugLog.Println("unchoked by", addr)

	return c, nil
}

// Handshake performs only the 68-byte handshake against addr and returns
// the remote peer id, then closes the connection. It does not wait for a
// BITFIELD or UNCHOKE — this is what backs the CLI's standalone
// `handshake` subcommand (spec.md §6), which is not followed by a piece
// download.
func Handshake(ctx context.Context, addr string, localPeerID, infoHash [20]byte) ([20]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return [20]byte{}, goerr.HandshakeWrap(err, "dial %s", addr)
	}
	defer conn.Close()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-watchCtx.Done()
		conn.Close()
	}()

	c := &Client{Conn: conn}
	if err := c.handshake(localPeerID, infoHash); err != nil {
		return [20]byte{}, err
	}
	return c.RemoteID, nil
}

// Close releases the session's socket. Safe to call more than once.
func (c *Client) Close() {
	if c.cancelConn != nil {
		c.cancelConn()
	}
	c.Conn.Close()
}

func (c *Client) handshake(localPeerID, infoHash [20]byte) error {
	c.Conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer c.Conn.SetDeadline(time.Time{})

	req := NewHandshake(infoHash, localPeerID)
	if _, err := c.Conn.Write(req.Serialize()); err != nil {
		return goerr.HandshakeWrap(err, "write handshake")
	}

	resp, err := ReadHandshake(c.Conn)
	if err != nil {
		return err
	}
	if !Validate(resp, infoHash) {
		return goerr.Handshakef("info hash mismatch: got %x want %x", resp.InfoHash, infoHash)
	}
	c.RemoteID = resp.PeerID
	return nil
}

// awaitBitfield waits for the first BITFIELD message, discarding
// keep-alives. Its payload is ignored: this client requests pieces without
// consulting peer availability (spec.md §4.4, §9).
func (c *Client) awaitBitfield() error {
	c.Conn.SetDeadline(time.Now().Add(bitfieldTimeout))
	defer c.Conn.SetDeadline(time.Time{})

	for {
		msg, err := ReadMessage(c.Conn)
		if err != nil {
			return err
		}
		if msg == nil {
			continue // keep-alive
		}
		if msg.ID != MsgBitfield {
			return goerr.Protocolf("expected BITFIELD, got message id %d", msg.ID)
		}
		return nil
	}
}

// awaitUnchoke waits for UNCHOKE, discarding every other message id
// (including keep-alives) per spec.md §4.4.
func (c *Client) awaitUnchoke() error {
	c.Conn.SetDeadline(time.Now().Add(pieceTimeout))
	defer c.Conn.SetDeadline(time.Time{})

	for {
		msg, err := ReadMessage(c.Conn)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		if msg.ID == MsgUnchoke {
			return nil
		}
	}
}

func (c *Client) sendMessage(m *Message) error {
	_, err := c.Conn.Write(m.Serialize())
	return err
}

// DownloadPiece requests every block of piece index (length bytes, split
// per metainfo.BlockSizes) sequentially — send REQUEST, await the matching
// PIECE reply, send the next REQUEST (spec.md §4.4, §5) — then verifies
// the assembled bytes against expectedHash. A mismatch is reported as
// PieceHashMismatch(index) and does not retry: the coordinator owns retry
// policy (spec.md §4.4).
func (c *Client) DownloadPiece(ctx context.Context, index, length int, blockSizes []int, expectedHash [20]byte) ([]byte, error) {
	c.Conn.SetDeadline(time.Now().Add(pieceTimeout))
	defer c.Conn.SetDeadline(time.Time{})

	buf := make([]byte, length)
	offset := 0
	for _, blockLen := range blockSizes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := c.sendMessage(FormatRequest(index, offset, blockLen)); err != nil {
			return nil, goerr.ProtocolWrap(err, "send REQUEST for piece %d offset %d", index, offset)
		}

		data, err := c.awaitMatchingPiece(index)
		if err != nil {
			return nil, err
		}
		if len(data) != blockLen {
			return nil, goerr.Protocolf("piece %d offset %d: expected %d bytes, got %d", index, offset, blockLen, len(data))
		}
		copy(buf[offset:], data)
		offset += blockLen
	}

	if sha1.Sum(buf) != expectedHash {
		return nil, goerr.HashMismatchf(index, "sha1 mismatch")
	}
	return buf, nil
}

// awaitMatchingPiece discards any message id (including keep-alives) until
// a PIECE reply for the given piece index arrives, then returns its block
// data. The offset field is trusted to match the pending request in order
// (spec.md §4.4 notes a stricter implementation MAY validate it).
func (c *Client) awaitMatchingPiece(index int) ([]byte, error) {
	for {
		msg, err := ReadMessage(c.Conn)
		if err != nil {
			return nil, err
		}
		if msg == nil || msg.ID != MsgPiece {
			continue
		}
		gotIndex, _, data, err := ParsePiece(msg)
		if err != nil {
			return nil, err
		}
		if gotIndex != index {
			continue
		}
		return data, nil
	}
}
