package metainfo

// FileSpan is the portion of a file that a piece (or any byte range)
// overlaps: [FileOffset, FileOffset+Length) within the file, corresponding
// to [RangeOffset, RangeOffset+Length) within the queried byte range.
type FileSpan struct {
	FileIndex  int
	FileOffset int64
	// RangeOffset is the offset of this span's first byte within the
	// queried [start, end) range, e.g. the offset within a piece buffer.
	RangeOffset int64
	Length      int64
}

// FileSpans returns, for the absolute logical byte range [start, end),
// every file it overlaps and the corresponding offsets into both the file
// and the range. This is computed purely from cumulative integer byte
// offsets (never length/pieceLength float division, per spec.md §9's
// resolved Open Question) so it is correct even when files do not start
// on piece boundaries (spec.md S7).
func (info *Info) FileSpans(start, end int64) []FileSpan {
	var spans []FileSpan
	for i, f := range info.Files {
		fileStart, fileEnd := f.CumStart, f.End()
		if end <= fileStart || start >= fileEnd {
			continue
		}
		overlapStart := max64(start, fileStart)
		overlapEnd := min64(end, fileEnd)
		spans = append(spans, FileSpan{
			FileIndex:   i,
			FileOffset:  overlapStart - fileStart,
			RangeOffset: overlapStart - start,
			Length:      overlapEnd - overlapStart,
		})
	}
	return spans
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
