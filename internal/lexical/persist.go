package lexical

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
)

// On-disk blob layout: 16-byte header (magic, version, payload length),
// JSON payload, 4-byte CRC-32 footer over the payload. One blob holds the
// whole corpus across all books; load is all-or-nothing.
const (
	magicBytes    uint32 = 0x42514958 // "BQIX"
	formatVersion uint32 = 1
	headerSize           = 16
	footerSize           = 4
)

type indexBlob struct {
	Params   Params               `json:"params"`
	Postings map[string][]posting `json:"postings"`
	DocLens  map[string]int       `json:"doc_lens"`
	DocIDs   []string             `json:"doc_ids"`
	AvgDL    float64              `json:"avgdl"`
}

// Persist serialises the index to path as one atomic unit. It writes to a
// .tmp file, fsyncs, and renames, so a crash never leaves a torn blob behind.
func (ix *Index) Persist(path string) error {
	payload, err := json.Marshal(indexBlob{
		Params:   ix.params,
		Postings: ix.postings,
		DocLens:  ix.docLens,
		DocIDs:   ix.docIDs,
		AvgDL:    ix.avgdl,
	})
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], magicBytes)
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(payload))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing checksum: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// Load reads a persisted index blob. A missing file yields ErrIndexNotFound;
// any structural problem (bad magic, unknown version, checksum mismatch,
// truncation, undecodable payload) yields ErrIndexCorrupt. No partially
// loaded index is ever returned.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", apperrors.ErrIndexCorrupt, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != magicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %#x", apperrors.ErrIndexCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrIndexCorrupt, version)
	}
	payloadLen := binary.LittleEndian.Uint64(header[8:16])
	// Validate the declared length against the actual file size before
	// allocating, so a corrupted length field cannot panic or balloon memory.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("statting index file: %w", err)
	}
	if maxPayload := info.Size() - headerSize - footerSize; maxPayload < 0 || payloadLen > uint64(maxPayload) {
		return nil, fmt.Errorf("%w: payload length %d exceeds file size %d", apperrors.ErrIndexCorrupt, payloadLen, info.Size())
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, fmt.Errorf("%w: short payload: %v", apperrors.ErrIndexCorrupt, err)
	}
	footer := make([]byte, footerSize)
	if _, err := io.ReadFull(f, footer); err != nil {
		return nil, fmt.Errorf("%w: missing checksum: %v", apperrors.ErrIndexCorrupt, err)
	}
	if want, got := binary.LittleEndian.Uint32(footer), crc32.ChecksumIEEE(payload); want != got {
		return nil, fmt.Errorf("%w: checksum mismatch (want %#x, got %#x)", apperrors.ErrIndexCorrupt, want, got)
	}

	var blob indexBlob
	if err := json.Unmarshal(payload, &blob); err != nil {
		return nil, fmt.Errorf("%w: undecodable payload: %v", apperrors.ErrIndexCorrupt, err)
	}
	if len(blob.DocIDs) == 0 || blob.DocLens == nil || blob.Postings == nil {
		return nil, fmt.Errorf("%w: incomplete payload", apperrors.ErrIndexCorrupt)
	}

	return &Index{
		params:   blob.Params,
		postings: blob.Postings,
		docLens:  blob.DocLens,
		docIDs:   blob.DocIDs,
		avgdl:    blob.AvgDL,
	}, nil
}
