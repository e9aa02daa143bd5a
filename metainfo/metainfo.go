// Package metainfo provides a typed view over a decoded bencode metainfo
// document: the announce URL(s), the info-hash, and single-file/multi-file
// piece geometry.
package metainfo

import (
	"fmt"

	"github.com/aidenmarsh/torrentcore/bencode"
)

// File describes one file of a multi-file torrent, or the single implicit
// file of a single-file torrent, flattened into the logical byte stream
// formed by concatenating every file in list order.
type File struct {
	// CumStart is the offset of this file's first byte in the logical
	// concatenation of all files.
	CumStart int64
	Length   int64
	// Path is the file's path, already joined with the platform separator:
	// the torrent's Name for a single-file torrent, or the path segments
	// relative to the torrent's Name directory for a multi-file one.
	Path string
}

// End returns the offset one past this file's last byte in the logical
// byte stream.
func (f File) End() int64 {
	return f.CumStart + f.Length
}

// Info is the parsed `info` sub-dictionary: piece geometry and file
// layout, common to both single-file and multi-file torrents.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      [][20]byte
	Files       []File
	TotalLength int64
}

// Multi reports whether this torrent has more than one file.
func (info *Info) Multi() bool {
	return len(info.Files) > 1
}

// NumPieces returns the number of pieces, matching
// ceil(TotalLength / PieceLength) (spec.md §8 invariant 2).
func (info *Info) NumPieces() int {
	return len(info.Pieces)
}

// PieceLen returns the length in bytes of piece i, accounting for the
// final, possibly-shorter, piece (spec.md §3 PieceGeometry).
func (info *Info) PieceLen(i int) int64 {
	if i == len(info.Pieces)-1 {
		last := info.TotalLength - int64(i)*info.PieceLength
		if last > 0 {
			return last
		}
	}
	return info.PieceLength
}

// PieceRange returns the absolute byte range [start, end) of piece i in
// the logical concatenated byte stream.
func (info *Info) PieceRange(i int) (start, end int64) {
	start = int64(i) * info.PieceLength
	end = start + info.PieceLen(i)
	return
}

// Metainfo is the flattened view of a whole torrent file: one or more
// announce URLs plus the info dictionary.
type Metainfo struct {
	// AnnounceList holds every tracker tier from BEP 12's
	// "announce-list", falling back to a single-element list built from
	// the legacy "announce" key when no announce-list is present.
	AnnounceList []string
	InfoHash     [20]byte
	Info         *Info
}

// MalformedError reports a metainfo document that is structurally invalid
// per spec.md §4.2 (missing/mistyped keys, invalid piece geometry, etc).
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed metainfo: %s", e.Reason)
}

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// typed accessors over bencode.Value that convert any mismatch into a
// MalformedError, per spec.md §9's design note replacing runtime type
// queries with typed accessors.

func dictField(dict map[string]bencode.Value, key string) (bencode.Value, error) {
	v, ok := dict[key]
	if !ok {
		return bencode.Value{}, malformed("missing key %q", key)
	}
	return v, nil
}

func stringField(dict map[string]bencode.Value, key string) ([]byte, error) {
	v, err := dictField(dict, key)
	if err != nil {
		return nil, err
	}
	s, err := v.AsString()
	if err != nil {
		return nil, malformed("key %q: %s", key, err)
	}
	return s, nil
}

func intField(dict map[string]bencode.Value, key string) (int64, error) {
	v, err := dictField(dict, key)
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt()
	if err != nil {
		return 0, malformed("key %q: %s", key, err)
	}
	return n, nil
}

// Parse decodes raw metainfo bytes (the contents of a .torrent file) into
// a Metainfo, validating every required key from spec.md §4.2.
func Parse(raw []byte) (*Metainfo, error) {
	top, err := bencode.DecodeFull(raw)
	if err != nil {
		return nil, malformed("invalid bencode: %s", err)
	}
	topDict, err := top.AsDict()
	if err != nil {
		return nil, malformed("top-level value is not a dictionary")
	}

	announceList, err := parseAnnounceList(topDict)
	if err != nil {
		return nil, err
	}

	infoVal, err := dictField(topDict, "info")
	if err != nil {
		return nil, err
	}
	infoDict, err := infoVal.AsDict()
	if err != nil {
		return nil, malformed("key \"info\" is not a dictionary")
	}

	start, end := infoVal.Span()
	if start == end {
		// A dictionary decoded from raw always has a non-empty span, so
		// Parse does not take this branch; it hashes a re-encoding instead,
		// which matches the original bytes as long as key order was
		// preserved (spec.md §4.1).
		infoHash := sha1InfoHash(bencode.Encode(infoVal))
		info, err := parseInfo(infoDict)
		if err != nil {
			return nil, err
		}
		return &Metainfo{AnnounceList: announceList, InfoHash: infoHash, Info: info}, nil
	}

	infoHash := sha1InfoHash(raw[start:end])
	info, err := parseInfo(infoDict)
	if err != nil {
		return nil, err
	}
	return &Metainfo{AnnounceList: announceList, InfoHash: infoHash, Info: info}, nil
}

func parseAnnounceList(dict map[string]bencode.Value) ([]string, error) {
	var urls []string
	if tiers, ok := dict["announce-list"]; ok {
		if list, err := tiers.AsList(); err == nil {
			for _, tier := range list {
				tierList, err := tier.AsList()
				if err != nil {
					continue
				}
				for _, u := range tierList {
					s, err := u.AsString()
					if err != nil || len(s) == 0 {
						continue
					}
					urls = append(urls, string(s))
				}
			}
		}
	}
	if len(urls) > 0 {
		return urls, nil
	}

	announce, err := stringField(dict, "announce")
	if err != nil {
		return nil, err
	}
	if len(announce) == 0 {
		return nil, malformed("empty announce URL")
	}
	return []string{string(announce)}, nil
}

func parseInfo(dict map[string]bencode.Value) (*Info, error) {
	name, err := stringField(dict, "name")
	if err != nil {
		return nil, err
	}
	if len(name) == 0 {
		return nil, malformed("empty name")
	}

	pieceLength, err := intField(dict, "piece length")
	if err != nil {
		return nil, err
	}
	if pieceLength <= 0 {
		return nil, malformed("piece length must be positive, got %d", pieceLength)
	}

	piecesRaw, err := stringField(dict, "pieces")
	if err != nil {
		return nil, err
	}
	if len(piecesRaw)%20 != 0 {
		return nil, malformed("pieces length %d not divisible by 20", len(piecesRaw))
	}
	pieces := make([][20]byte, len(piecesRaw)/20)
	for i := range pieces {
		copy(pieces[i][:], piecesRaw[i*20:(i+1)*20])
	}

	_, hasLength := dict["length"]
	_, hasFiles := dict["files"]
	if hasLength == hasFiles {
		return nil, malformed("info must have exactly one of \"length\" or \"files\"")
	}

	var files []File
	var total int64
	if hasLength {
		length, err := intField(dict, "length")
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, malformed("negative length %d", length)
		}
		files = []File{{CumStart: 0, Length: length, Path: string(name)}}
		total = length
	} else {
		filesVal, err := dictField(dict, "files")
		if err != nil {
			return nil, err
		}
		fileList, err := filesVal.AsList()
		if err != nil {
			return nil, malformed("\"files\" is not a list")
		}
		if len(fileList) == 0 {
			return nil, malformed("\"files\" is empty")
		}
		files, total, err = parseFiles(fileList)
		if err != nil {
			return nil, err
		}
	}

	expectedPieces := (total + pieceLength - 1) / pieceLength
	if int64(len(pieces)) != expectedPieces {
		return nil, malformed(
			"expected %d pieces for length %d at piece length %d, got %d",
			expectedPieces, total, pieceLength, len(pieces))
	}

	return &Info{
		Name:        string(name),
		PieceLength: pieceLength,
		Pieces:      pieces,
		Files:       files,
		TotalLength: total,
	}, nil
}

func parseFiles(list []bencode.Value) ([]File, int64, error) {
	files := make([]File, len(list))
	var cum int64
	for i, item := range list {
		dict, err := item.AsDict()
		if err != nil {
			return nil, 0, malformed("file %d is not a dictionary", i)
		}
		length, err := intField(dict, "length")
		if err != nil {
			return nil, 0, malformed("file %d: %s", i, err)
		}
		if length < 0 {
			return nil, 0, malformed("file %d has negative length %d", i, length)
		}
		pathVal, err := dictField(dict, "path")
		if err != nil {
			return nil, 0, malformed("file %d: %s", i, err)
		}
		pathList, err := pathVal.AsList()
		if err != nil || len(pathList) == 0 {
			return nil, 0, malformed("file %d: \"path\" must be a non-empty list", i)
		}
		path, err := joinPath(pathList)
		if err != nil {
			return nil, 0, malformed("file %d: %s", i, err)
		}
		files[i] = File{CumStart: cum, Length: length, Path: path}
		cum += length
	}
	return files, cum, nil
}
