// Package metainfo loads a .torrent file (spec.md §4.2) and derives its
// info-hash and piece geometry (spec.md §4.6).
package metainfo

import (
	"crypto/sha1"
	"io"
	"os"

	"github.com/mikeolsen/go-torrent-client/bencode"
	"github.com/mikeolsen/go-torrent-client/goerr"
)

// BlockSize is the fixed block size used for REQUEST/PIECE exchanges
// (spec.md §3): 16 KiB.
const BlockSize = 16384

// FileEntry is one file within a multi-file torrent (BEP-3). The download
// path (peer/client) only targets single-file torrents per spec.md's
// Non-goals; FileEntry exists so `info` can still describe a multi-file
// torrent without the loader rejecting it outright.
type FileEntry struct {
	Length int
	Path   []string
	Md5sum string
}

// Info holds the validated fields of a torrent's "info" dictionary.
type Info struct {
	Name        string
	PieceLength int
	Pieces      []byte // concatenated 20-byte SHA-1 digests
	Length      int    // total length: info.length, or sum(Files[].Length)
	Files       []FileEntry
}

// TorrentFile is a fully parsed, validated .torrent file.
type TorrentFile struct {
	Announce string
	InfoHash [20]byte
	Info     Info
}

// Open reads and parses the .torrent file at path.
func Open(path string) (TorrentFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return TorrentFile{}, goerr.InvalidMetainfof("open %s: %v", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a .torrent file's bytes into a TorrentFile, computing
// info_hash = SHA1(encode(info)) per spec.md §3.
func Load(r io.Reader) (TorrentFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return TorrentFile{}, goerr.InvalidMetainfof("read torrent file: %v", err)
	}
	root, err := bencode.Decode(raw)
	if err != nil {
		return TorrentFile{}, goerr.InvalidMetainfof("decode torrent file: %v", err)
	}
	return fromValue(root)
}

func fromValue(root bencode.Value) (TorrentFile, error) {
	if root.Kind() != bencode.KindDict {
		return TorrentFile{}, goerr.InvalidMetainfof("torrent file is not a dictionary")
	}

	announceVal, ok := root.Get("announce")
	if !ok {
		return TorrentFile{}, goerr.InvalidMetainfof("missing \"announce\"")
	}
	announceBytes, ok := announceVal.Bytes()
	if !ok {
		return TorrentFile{}, goerr.InvalidMetainfof("\"announce\" is not a byte string")
	}

	infoVal, ok := root.Get("info")
	if !ok {
		return TorrentFile{}, goerr.InvalidMetainfof("missing \"info\"")
	}
	if infoVal.Kind() != bencode.KindDict {
		return TorrentFile{}, goerr.InvalidMetainfof("\"info\" is not a dictionary")
	}

	info, err := parseInfo(infoVal)
	if err != nil {
		return TorrentFile{}, err
	}

	digest := sha1.Sum(bencode.Encode(infoVal))

	return TorrentFile{
		Announce: string(announceBytes),
		InfoHash: digest,
		Info:     info,
	}, nil
}

func parseInfo(infoVal bencode.Value) (Info, error) {
	nameVal, ok := infoVal.Get("name")
	if !ok {
		return Info{}, goerr.InvalidMetainfof("info: missing \"name\"")
	}
	nameBytes, ok := nameVal.Bytes()
	if !ok {
		return Info{}, goerr.InvalidMetainfof("info: \"name\" is not a byte string")
	}

	pieceLenVal, ok := infoVal.Get("piece length")
	if !ok {
		return Info{}, goerr.InvalidMetainfof("info: missing \"piece length\"")
	}
	pieceLen, ok := pieceLenVal.Int64()
	if !ok || pieceLen <= 0 {
		return Info{}, goerr.InvalidMetainfof("info: \"piece length\" must be a positive integer")
	}

	piecesVal, ok := infoVal.Get("pieces")
	if !ok {
		return Info{}, goerr.InvalidMetainfof("info: missing \"pieces\"")
	}
	pieces, ok := piecesVal.Bytes()
	if !ok {
		return Info{}, goerr.InvalidMetainfof("info: \"pieces\" is not a byte string")
	}
	if len(pieces)%20 != 0 {
		return Info{}, goerr.InvalidMetainfof("info: \"pieces\" length %d is not a multiple of 20", len(pieces))
	}

	lengthVal, hasLength := infoVal.Get("length")
	filesVal, hasFiles := infoVal.Get("files")

	var (
		length int
		files  []FileEntry
	)
	switch {
	case hasFiles:
		items, ok := filesVal.ListItems()
		if !ok {
			return Info{}, goerr.InvalidMetainfof("info: \"files\" is not a list")
		}
		for idx, item := range items {
			fe, err := parseFileEntry(item)
			if err != nil {
				return Info{}, goerr.InvalidMetainfof("info: files[%d]: %v", idx, err)
			}
			files = append(files, fe)
			length += fe.Length
		}
	case hasLength:
		n, ok := lengthVal.Int64()
		if !ok || n <= 0 {
			return Info{}, goerr.InvalidMetainfof("info: \"length\" must be a positive integer")
		}
		length = int(n)
	default:
		return Info{}, goerr.InvalidMetainfof("info: missing both \"length\" and \"files\"")
	}

	return Info{
		Name:        string(nameBytes),
		PieceLength: int(pieceLen),
		Pieces:      pieces,
		Length:      length,
		Files:       files,
	}, nil
}

func parseFileEntry(v bencode.Value) (FileEntry, error) {
	lengthVal, ok := v.Get("length")
	if !ok {
		return FileEntry{}, goerr.InvalidMetainfof("missing \"length\"")
	}
	n, ok := lengthVal.Int64()
	if !ok || n < 0 {
		return FileEntry{}, goerr.InvalidMetainfof("\"length\" must be a non-negative integer")
	}

	pathVal, ok := v.Get("path")
	if !ok {
		return FileEntry{}, goerr.InvalidMetainfof("missing \"path\"")
	}
	items, ok := pathVal.ListItems()
	if !ok {
		return FileEntry{}, goerr.InvalidMetainfof("\"path\" is not a list")
	}
	path := make([]string, 0, len(items))
	for _, item := range items {
		b, ok := item.Bytes()
		if !ok {
			return FileEntry{}, goerr.InvalidMetainfof("\"path\" element is not a byte string")
		}
		path = append(path, string(b))
	}

	var md5sum string
	if md5Val, ok := v.Get("md5sum"); ok {
		if b, ok := md5Val.Bytes(); ok {
			md5sum = string(b)
		}
	}

	return FileEntry{Length: int(n), Path: path, Md5sum: md5sum}, nil
}

// PieceCount returns n = ceil(L/P), derived as len(pieces)/20 (spec.md §4.6).
func (t TorrentFile) PieceCount() int {
	return len(t.Info.Pieces) / 20
}

// PieceLength returns the length of piece i: info.piece_length for every
// piece but the last, whose length is the remainder (spec.md §3, §4.6).
func (t TorrentFile) PieceLength(i int) int {
	n := t.PieceCount()
	if i < n-1 {
		return t.Info.PieceLength
	}
	return t.Info.Length - t.Info.PieceLength*(n-1)
}

// PieceHash returns the expected SHA-1 digest of piece i.
func (t TorrentFile) PieceHash(i int) [20]byte {
	var h [20]byte
	copy(h[:], t.Info.Pieces[i*20:i*20+20])
	return h
}

// BlockSizes returns the length of each block a piece of the given length
// splits into: fixed BlockSize chunks, plus a final short block if
// pieceLen is not a multiple of BlockSize (spec.md §3).
func BlockSizes(pieceLen int) []int {
	if pieceLen <= 0 {
		return nil
	}
	n := pieceLen / BlockSize
	rem := pieceLen % BlockSize
	sizes := make([]int, 0, n+1)
	for i := 0; i < n; i++ {
		sizes = append(sizes, BlockSize)
	}
	if rem > 0 {
		sizes = append(sizes, rem)
	}
	return sizes
}
