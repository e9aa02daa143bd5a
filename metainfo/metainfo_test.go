package metainfo

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSingleFileTorrent(t *testing.T) []byte {
	t.Helper()
	// "info" sub-dict bytes must be a literal, byte-exact span so we can
	// assert the info-hash independently (S4 from spec.md §8).
	info := "d6:lengthi12e4:name5:a.txt12:piece lengthi16384e6:pieces20:" + string(make([]byte, 20)) + "e"
	doc := "d8:announce20:http://tracker.test/4:info" + info + "e"
	return []byte(doc)
}

// S4 from spec.md §8: info-hash is SHA-1 over the info sub-slice.
func TestInfoHashMatchesSubSlice(t *testing.T) {
	raw := buildSingleFileTorrent(t)
	m, err := Parse(raw)
	require.NoError(t, err)

	infoStart := len(`d8:announce20:http://tracker.test/4:info`)
	infoBytes := raw[infoStart : len(raw)-1]
	want := sha1.Sum(infoBytes)
	assert.Equal(t, want, m.InfoHash)
	assert.Equal(t, "http://tracker.test/", m.AnnounceList[0])
	assert.Equal(t, int64(12), m.Info.TotalLength)
	assert.False(t, m.Info.Multi())
}

func TestNumPiecesMatchesCeilDivision(t *testing.T) {
	// 12 bytes with a 16384-byte piece length: one piece (spec.md §8
	// invariant 2: len(pieces) == ceil(total_length / piece_length)).
	raw := buildSingleFileTorrent(t)
	m, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Info.NumPieces())
	assert.Equal(t, int64(12), m.Info.PieceLen(0))
}

func TestRejectsMissingPieceLength(t *testing.T) {
	doc := "d8:announce4:http4:infod4:name1:a6:pieces0:ee"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	var malformedErr *MalformedError
	require.ErrorAs(t, err, &malformedErr)
}

func TestRejectsLengthAndFilesTogether(t *testing.T) {
	info := "d5:files" + "le" + "6:lengthi1e4:name1:a12:piece lengthi1e6:pieces20:" + string(make([]byte, 20)) + "e"
	doc := "d8:announce4:http4:info" + info + "e"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestRejectsBadPiecesLength(t *testing.T) {
	info := "d6:lengthi12e4:name5:a.txt12:piece lengthi16384e6:pieces3:abce"
	doc := "d8:announce4:http4:info" + info + "e"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

// S7 from spec.md §8: multi-file geometry with files that don't start on
// piece boundaries.
func TestMultiFileGeometry(t *testing.T) {
	info := &Info{
		PieceLength: 8,
		TotalLength: 30,
		Files: []File{
			{CumStart: 0, Length: 10, Path: "a"},
			{CumStart: 10, Length: 20, Path: "b"},
		},
	}

	start, end := info.PieceRange(0)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(8), end)
	spans := info.FileSpans(start, end)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].FileIndex)
	assert.Equal(t, int64(0), spans[0].FileOffset)
	assert.Equal(t, int64(8), spans[0].Length)

	start, end = info.PieceRange(1)
	assert.Equal(t, int64(8), start)
	assert.Equal(t, int64(16), end)
	spans = info.FileSpans(start, end)
	require.Len(t, spans, 2)
	assert.Equal(t, 0, spans[0].FileIndex)
	assert.Equal(t, int64(8), spans[0].FileOffset)
	assert.Equal(t, int64(2), spans[0].Length)
	assert.Equal(t, 1, spans[1].FileIndex)
	assert.Equal(t, int64(0), spans[1].FileOffset)
	assert.Equal(t, int64(6), spans[1].Length)

	// Piece 3 (last, 6 bytes): offsets 24-29 -> file b bytes 14-19.
	numPieces := 4
	lastPieceLen := info.TotalLength - int64(numPieces-1)*info.PieceLength
	require.Equal(t, int64(6), lastPieceLen)
	start, end = int64(numPieces-1)*info.PieceLength, int64(numPieces-1)*info.PieceLength+lastPieceLen
	spans = info.FileSpans(start, end)
	require.Len(t, spans, 1)
	assert.Equal(t, 1, spans[0].FileIndex)
	assert.Equal(t, int64(14), spans[0].FileOffset)
	assert.Equal(t, int64(6), spans[0].Length)
}
