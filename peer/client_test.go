package peer

import (
	"context"
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mikeolsen/go-torrent-client/metainfo"
)

// mockPeer runs a minimal fixture peer: handshake, bitfield, unchoke, then
// serve whatever piece data is requested from pieceData.
func mockPeer(t *testing.T, ln net.Listener, infoHash [20]byte, remoteID [20]byte, pieceData []byte) {
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	hs, err := ReadHandshake(conn)
	require.NoError(t, err)
	require.Equal(t, infoHash, hs.InfoHash)

	resp := NewHandshake(infoHash, remoteID)
	_, err = conn.Write(resp.Serialize())
	require.NoError(t, err)

	bitfield := &Message{ID: MsgBitfield, Payload: []byte{0xff}}
	_, err = conn.Write(bitfield.Serialize())
	require.NoError(t, err)

	msg, err := ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, MsgInterested, msg.ID)

	unchoke := &Message{ID: MsgUnchoke}
	_, err = conn.Write(unchoke.Serialize())
	require.NoError(t, err)

	for {
		req, err := ReadMessage(conn)
		if err != nil {
			return
		}
		if req == nil {
			continue
		}
		if req.ID != MsgRequest {
			continue
		}
		index, begin, length, ok := decodeRequestPayload(req.Payload)
		if !ok {
			return
		}
		payload := make([]byte, 8+length)
		putU32(payload[0:4], uint32(index))
		putU32(payload[4:8], uint32(begin))
		copy(payload[8:], pieceData[begin:begin+length])
		piece := &Message{ID: MsgPiece, Payload: payload}
		if _, err := conn.Write(piece.Serialize()); err != nil {
			return
		}
		if begin+length >= len(pieceData) {
			return
		}
	}
}

func decodeRequestPayload(p []byte) (index, begin, length int, ok bool) {
	if len(p) != 12 {
		return 0, 0, 0, false
	}
	return int(getU32(p[0:4])), int(getU32(p[4:8])), int(getU32(p[8:12])), true
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func TestDialAndDownloadPieceAgainstFixturePeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")
	copy(localID[:], "-GT0001-123456789012")
	copy(remoteID[:], "-XX0001-abcdefghijkl")

	pieceData := make([]byte, metainfo.BlockSize+100)
	for i := range pieceData {
		pieceData[i] = byte(i % 251)
	}
	expectedHash := sha1.Sum(pieceData)

	done := make(chan struct{})
	go func() {
		defer close(done)
		mockPeer(t, ln, infoHash, remoteID, pieceData)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr().String(), localID, infoHash)
	require.NoError(t, err)
	defer client.Close()
	require.Equal(t, remoteID, client.RemoteID)

	blockSizes := metainfo.BlockSizes(len(pieceData))
	buf, err := client.DownloadPiece(ctx, 0, len(pieceData), blockSizes, expectedHash)
	require.NoError(t, err)
	require.Equal(t, pieceData, buf)

	<-done
}

func TestDialFailsOnInfoHashMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var infoHash, wrongHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")
	copy(wrongHash[:], "wrongwrongwrongwrong")
	copy(localID[:], "-GT0001-123456789012")
	copy(remoteID[:], "-XX0001-abcdefghijkl")

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		ReadHandshake(conn)
		resp := NewHandshake(wrongHash, remoteID)
		conn.Write(resp.Serialize())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Dial(ctx, ln.Addr().String(), localID, infoHash)
	require.Error(t, err)
}
