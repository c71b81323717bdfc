package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// WriteRecord frames one payload into the stream: a little-endian uint32
// size, the payload, and zero padding to a four-byte boundary.
func WriteRecord(w io.Writer, payload []byte) error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if pad := (-len(payload)) & 3; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecord reads one framed payload. It returns io.EOF cleanly at the end
// of the stream and ErrCorruptData on a truncated record.
func ReadRecord(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, corrupt("truncated record size: %v", err)
	}
	n := binary.LittleEndian.Uint32(size[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, corrupt("record promises %d bytes: %v", n, err)
	}
	if pad := (-int(n)) & 3; pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, corrupt("truncated record padding: %v", err)
		}
	}
	return payload, nil
}

// ExportCorpus writes all programs as one framed stream, sharing a single
// operation-deduplication table.
func ExportCorpus(w io.Writer, programs []*il.Program) error {
	enc := NewEncoder()
	for i, p := range programs {
		if err := WriteRecord(w, enc.Encode(p)); err != nil {
			return fmt.Errorf("exporting program %d: %w", i, err)
		}
	}
	return nil
}

// ImportResult summarizes one corpus import.
type ImportResult struct {
	// Programs are the successfully decoded, structurally valid programs.
	Programs []*il.Program

	// Invalid counts decoded programs that failed the validity check and
	// were skipped.
	Invalid int
}

// ImportCorpus reads a framed stream back into programs. Decode failures
// abort the import with ErrCorruptData; programs that decode but violate the
// program model are skipped and counted.
func ImportCorpus(r io.Reader) (*ImportResult, error) {
	dec := NewDecoder()
	result := &ImportResult{}
	for {
		payload, err := ReadRecord(r)
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := dec.Decode(payload)
		if err != nil {
			return nil, err
		}
		if p.Check() != nil {
			result.Invalid++
			continue
		}
		result.Programs = append(result.Programs, p)
	}
}
