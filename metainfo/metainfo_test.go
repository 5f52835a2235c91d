package metainfo

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bstr renders a bencoded byte string.
func bstr(s string) string { return fmt.Sprintf("%d:%s", len(s), s) }

// canonical info dict for the spec.md §8 Ubuntu-style sample, with keys in
// sorted order (length, name, piece length, pieces).
func sampleInfoCanonical(pieces string) string {
	var b strings.Builder
	b.WriteByte('d')
	b.WriteString(bstr("length"))
	b.WriteString("i92063e")
	b.WriteString(bstr("name"))
	b.WriteString(bstr("sample"))
	b.WriteString(bstr("piece length"))
	b.WriteString("i32768e")
	b.WriteString(bstr("pieces"))
	b.WriteString(bstr(pieces))
	b.WriteByte('e')
	return b.String()
}

// same dict with scrambled (non-canonical) key order, to prove info_hash is
// unaffected by source key ordering (spec.md §8).
func sampleInfoScrambled(pieces string) string {
	var b strings.Builder
	b.WriteByte('d')
	b.WriteString(bstr("pieces"))
	b.WriteString(bstr(pieces))
	b.WriteString(bstr("name"))
	b.WriteString(bstr("sample"))
	b.WriteString(bstr("length"))
	b.WriteString("i92063e")
	b.WriteString(bstr("piece length"))
	b.WriteString("i32768e")
	b.WriteByte('e')
	return b.String()
}

func fullTorrent(infoDict string) string {
	var b strings.Builder
	b.WriteByte('d')
	b.WriteString(bstr("announce"))
	b.WriteString(bstr("http://t.example/announce"))
	b.WriteString(bstr("info"))
	b.WriteString(infoDict)
	b.WriteByte('e')
	return b.String()
}

func TestInfoHashMatchesSHA1OfCanonicalInfo(t *testing.T) {
	pieces := strings.Repeat("01234567890123456789", 3) // 60 bytes = 3 piece hashes
	canonical := sampleInfoCanonical(pieces)
	want := sha1.Sum([]byte(canonical))

	tf, err := Load(strings.NewReader(fullTorrent(canonical)))
	require.NoError(t, err)

	assert.Equal(t, want, tf.InfoHash)
	assert.Equal(t, "http://t.example/announce", tf.Announce)
	assert.Equal(t, 92063, tf.Info.Length)
	assert.Equal(t, 32768, tf.Info.PieceLength)
	assert.Equal(t, "sample", tf.Info.Name)
	assert.Equal(t, 3, tf.PieceCount())
}

func TestInfoHashUnaffectedByKeyOrdering(t *testing.T) {
	pieces := strings.Repeat("01234567890123456789", 3)

	canonical, err := Load(strings.NewReader(fullTorrent(sampleInfoCanonical(pieces))))
	require.NoError(t, err)

	scrambled, err := Load(strings.NewReader(fullTorrent(sampleInfoScrambled(pieces))))
	require.NoError(t, err)

	assert.Equal(t, canonical.InfoHash, scrambled.InfoHash)
}

func TestPieceGeometry(t *testing.T) {
	t.Run("100 over 32", func(t *testing.T) {
		tf := TorrentFile{Info: Info{Length: 100, PieceLength: 32, Pieces: make([]byte, 20*4)}}
		require.Equal(t, 4, tf.PieceCount())
		var lens []int
		for i := 0; i < tf.PieceCount(); i++ {
			lens = append(lens, tf.PieceLength(i))
		}
		assert.Equal(t, []int{32, 32, 32, 4}, lens)
	})

	t.Run("64 over 32 (exact)", func(t *testing.T) {
		tf := TorrentFile{Info: Info{Length: 64, PieceLength: 32, Pieces: make([]byte, 20*2)}}
		require.Equal(t, 2, tf.PieceCount())
		var lens []int
		for i := 0; i < tf.PieceCount(); i++ {
			lens = append(lens, tf.PieceLength(i))
		}
		assert.Equal(t, []int{32, 32}, lens)
	})
}

func TestBlockSizes(t *testing.T) {
	assert.Equal(t, []int{16384, 16384, 100}, BlockSizes(2*16384+100))
	assert.Equal(t, []int{16384}, BlockSizes(16384))
	assert.Equal(t, []int{100}, BlockSizes(100))
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	_, err := Load(strings.NewReader("d8:announce4:fooee"))
	require.Error(t, err)
}

func TestLoadMultiFileSumsLengths(t *testing.T) {
	var filesDict strings.Builder
	filesDict.WriteByte('l')
	filesDict.WriteByte('d')
	filesDict.WriteString(bstr("length"))
	filesDict.WriteString("i111e")
	filesDict.WriteString(bstr("path"))
	filesDict.WriteByte('l')
	filesDict.WriteString(bstr("a.txt"))
	filesDict.WriteByte('e')
	filesDict.WriteByte('e')
	filesDict.WriteByte('d')
	filesDict.WriteString(bstr("length"))
	filesDict.WriteString("i222e")
	filesDict.WriteString(bstr("path"))
	filesDict.WriteByte('l')
	filesDict.WriteString(bstr("b.txt"))
	filesDict.WriteByte('e')
	filesDict.WriteByte('e')
	filesDict.WriteByte('e')

	var info strings.Builder
	info.WriteByte('d')
	info.WriteString(bstr("files"))
	info.WriteString(filesDict.String())
	info.WriteString(bstr("name"))
	info.WriteString(bstr("multi"))
	info.WriteString(bstr("piece length"))
	info.WriteString("i32768e")
	info.WriteString(bstr("pieces"))
	info.WriteString(bstr(strings.Repeat("x", 20)))
	info.WriteByte('e')

	tf, err := Load(strings.NewReader(fullTorrent(info.String())))
	require.NoError(t, err)
	assert.Equal(t, 333, tf.Info.Length)
	require.Len(t, tf.Info.Files, 2)
	assert.Equal(t, []string{"a.txt"}, tf.Info.Files[0].Path)
	assert.Equal(t, 222, tf.Info.Files[1].Length)
}
