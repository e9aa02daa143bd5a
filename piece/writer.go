package piece

import (
	"os"
	"path/filepath"

	"github.com/aidenmarsh/torrentcore/metainfo"
)

// Writer maps verified piece bytes onto the files of a (possibly
// multi-file) torrent, using metainfo.Info.FileSpans to split each piece
// across file boundaries via integer cumulative offsets (spec.md §4.7).
type Writer struct {
	info  *metainfo.Info
	files []*os.File
}

// NewWriter creates (or truncates) every file the torrent describes under
// outDir, pre-allocating each to its final length.
func NewWriter(info *metainfo.Info, outDir string) (*Writer, error) {
	w := &Writer{info: info, files: make([]*os.File, len(info.Files))}
	for i, f := range info.Files {
		path := filepath.Join(outDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, newErr(WriteFailed, -1, "creating directory", err)
		}
		fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, newErr(WriteFailed, -1, "creating file", err)
		}
		if f.Length > 0 {
			if err := fd.Truncate(f.Length); err != nil {
				fd.Close()
				return nil, newErr(WriteFailed, -1, "truncating file", err)
			}
		}
		w.files[i] = fd
	}
	return w, nil
}

// WritePiece writes a verified piece's bytes to every file it spans.
func (w *Writer) WritePiece(index int, data []byte) error {
	start, end := w.info.PieceRange(index)
	for _, span := range w.info.FileSpans(start, end) {
		chunk := data[span.RangeOffset : span.RangeOffset+span.Length]
		if _, err := w.files[span.FileIndex].WriteAt(chunk, span.FileOffset); err != nil {
			return newErr(WriteFailed, index, "writing to file", err)
		}
	}
	return nil
}

// Close closes every underlying file handle.
func (w *Writer) Close() error {
	var first error
	for _, fd := range w.files {
		if fd == nil {
			continue
		}
		if err := fd.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
