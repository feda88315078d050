package bsm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxRecordSize bounds a single record so a corrupt length field cannot
// make us allocate gigabytes. The kernel caps audit records far below this.
const maxRecordSize = 1 << 20

// RecordReader reads whole audit records from a stream. It mirrors
// libbsm's au_read_rec: every successful read returns exactly one complete
// record, never a partial one. On an audit pipe with blocking reads this
// yields one record per call.
type RecordReader struct {
	r io.Reader
}

// NewRecordReader wraps r, typically an open audit pipe or trail file.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: r}
}

// ReadRecord returns the next record, or a nil slice (and nil error) at
// end of stream. I/O errors propagate; a stream that does not start with a
// header token is not a usable trail.
func (rr *RecordReader) ReadRecord() ([]byte, error) {
	var id [1]byte
	if _, err := io.ReadFull(rr.r, id[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token id: %w", err)
	}

	switch id[0] {
	case IDHeader32, IDHeader32Ex, IDHeader64, IDHeader64Ex:
	default:
		return nil, fmt.Errorf("bsm: stream does not start with a header token (id %#02x)", id[0])
	}

	// All header variants carry the record byte count right after the id.
	var size [4]byte
	if _, err := io.ReadFull(rr.r, size[:]); err != nil {
		return nil, fmt.Errorf("read record size: %w", err)
	}
	reclen := binary.BigEndian.Uint32(size[:])
	if reclen < 5 || reclen > maxRecordSize {
		return nil, fmt.Errorf("bsm: implausible record size %d", reclen)
	}

	rec := make([]byte, reclen)
	rec[0] = id[0]
	copy(rec[1:5], size[:])
	if _, err := io.ReadFull(rr.r, rec[5:]); err != nil {
		return nil, fmt.Errorf("read record body: %w", err)
	}
	return rec, nil
}
