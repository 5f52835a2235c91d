package peer

import (
	"encoding/binary"
	"io"

	"github.com/mikeolsen/go-torrent-client/goerr"
)

// ID is a peer wire message id (spec.md §4.4).
type ID uint8

const (
	MsgChoke         ID = 0
	MsgUnchoke       ID = 1
	MsgInterested    ID = 2
	MsgNotInterested ID = 3
	MsgHave          ID = 4
	MsgBitfield      ID = 5
	MsgRequest       ID = 6
	MsgPiece         ID = 7
	MsgCancel        ID = 8
)

// Message is a framed post-handshake peer message: 4-byte big-endian
// length prefix, 1-byte id, and id-dependent payload (spec.md §4.4). A nil
// *Message read from the wire represents a zero-length keep-alive.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize renders m to its wire form. A nil receiver serializes to the
// 4-byte zero-length keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads exactly one framed message from r. It retries short
// reads until the declared length is satisfied (spec.md §5); a zero-length
// read (io.EOF with nothing read) surfaces as ConnectionClosed. A
// zero-length frame (keep-alive) returns (nil, nil).
func ReadMessage(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, connClosedOrErr(err, "read message length prefix")
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return nil, nil // keep-alive
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, connClosedOrErr(err, "read message body")
	}

	return &Message{ID: ID(body[0]), Payload: body[1:]}, nil
}

func connClosedOrErr(err error, context string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return goerr.ConnClosedf("%s: %v", context, err)
	}
	return goerr.ProtocolWrap(err, context)
}

// FormatRequest builds a REQUEST (id 6) message for the given piece index,
// byte offset within the piece, and block length (spec.md §4.4).
func FormatRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: MsgRequest, Payload: payload}
}

// ParsePiece extracts (index, begin, data) from a PIECE (id 7) message
// payload: two big-endian 32-bit fields followed by the block bytes
// (spec.md §4.4).
func ParsePiece(msg *Message) (index, begin int, data []byte, err error) {
	if msg == nil || msg.ID != MsgPiece {
		return 0, 0, nil, goerr.Protocolf("expected PIECE message")
	}
	if len(msg.Payload) < 8 {
		return 0, 0, nil, goerr.Protocolf("PIECE payload too short (%d bytes)", len(msg.Payload))
	}
	index = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	data = msg.Payload[8:]
	return index, begin, data, nil
}
