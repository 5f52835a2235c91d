package peer

import (
	"bytes"
	"io"

	"github.com/mikeolsen/go-torrent-client/goerr"
)

// Pstr is the fixed protocol identifier string of the 68-byte handshake
// (spec.md §4.4).
const Pstr = "BitTorrent protocol"

// HandshakeMsg is the 68-byte opening exchange: 1-byte pstrlen (always 19) +
// pstr + 8 reserved bytes + 20-byte info hash + 20-byte peer id.
type HandshakeMsg struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds the local handshake message for the given torrent
// and local peer id.
func NewHandshake(infoHash, peerID [20]byte) HandshakeMsg {
	return HandshakeMsg{InfoHash: infoHash, PeerID: peerID}
}

// Serialize renders the handshake to its 68-byte wire form. The 8 reserved
// bytes are always zero: this client implements no extension protocol
// (spec.md §1 Non-goals).
func (h HandshakeMsg) Serialize() []byte {
	buf := make([]byte, 49+len(Pstr))
	cursor := 0
	buf[cursor] = byte(len(Pstr))
	cursor++
	cursor += copy(buf[cursor:], Pstr)
	cursor += 8 // reserved, left zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads exactly 68 bytes from r and parses them as a
// handshake response. The remote's pstrlen and pstr are tolerated even if
// unexpected (spec.md §4.4 — "the session MAY still continue"); a short
// read, or a pstrlen above 19 that leaves no room for the trailing info
// hash and peer id, fails with HandshakeFailed.
func ReadHandshake(r io.Reader) (HandshakeMsg, error) {
	buf := make([]byte, 68)
	if _, err := io.ReadFull(r, buf); err != nil {
		return HandshakeMsg{}, goerr.HandshakeWrap(err, "short handshake read")
	}
	pstrlen := int(buf[0])
	if 1+pstrlen+8+40 != 68 {
		// Tolerate a non-standard pstrlen per spec.md §4.4 by re-slicing
		// around it rather than failing outright, as long as the buffer
		// still has room for the trailing 40 info-hash/peer-id bytes.
		if 1+pstrlen+8+40 > len(buf) {
			return HandshakeMsg{}, goerr.Handshakef("handshake pstrlen %d leaves no room for info hash/peer id", pstrlen)
		}
	}
	var h HandshakeMsg
	copy(h.InfoHash[:], buf[1+pstrlen+8:1+pstrlen+8+20])
	copy(h.PeerID[:], buf[1+pstrlen+8+20:1+pstrlen+8+40])
	return h, nil
}

// Validate reports whether got's info hash matches want.
func Validate(got HandshakeMsg, want [20]byte) bool {
	return bytes.Equal(got.InfoHash[:], want[:])
}
