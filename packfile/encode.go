package packfile

import (
	"crypto/sha1" //nolint:gosec // wire-protocol mandated
	"encoding/binary"
	stdhash "hash"
	"io"

	"github.com/klauspost/compress/zlib"
)

// hashingWriter writes through to an underlying writer while feeding
// every byte written into a running checksum, so the trailing hash never
// needs to buffer and re-hash the whole pack.
type hashingWriter struct {
	w io.Writer
	h stdhash.Hash
}

func newHashingWriter(w io.Writer) *hashingWriter {
	return &hashingWriter{w: w, h: sha1.New()} //nolint:gosec // wire-protocol mandated
}

func (h *hashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	if n > 0 {
		h.h.Write(p[:n])
	}
	return n, err
}

// Encode writes a pack containing count entries, read from the entries
// channel, to w. Every entry is written non-delta compressed: delta
// compression on write is a permitted optimization the core does not
// implement. The caller must know count up front (e.g. by having already
// materialized or counted the entry sequence) since the object count is
// part of the 12-byte header and is written before any entry.
func Encode(w io.Writer, count uint32, entries <-chan Entry) error {
	hw := newHashingWriter(w)

	var header [headerSize]byte
	copy(header[0:4], magic())
	binary.BigEndian.PutUint32(header[4:8], version)
	binary.BigEndian.PutUint32(header[8:12], count)
	if _, err := hw.Write(header[:]); err != nil {
		return err
	}

	var written uint32
	for e := range entries {
		if err := encodeEntry(hw, e); err != nil {
			return err
		}
		written++
	}
	if written != count {
		return ErrMalformedPack
	}

	trailer := hw.h.Sum(nil)
	_, err := w.Write(trailer)
	return err
}

// encodeEntry writes one non-delta entry: a type+size varint header
// followed by a zlib-compressed copy of the object's content.
func encodeEntry(w io.Writer, e Entry) error {
	if _, err := w.Write(writeTypeAndSize(byte(e.Type), uint64(len(e.Payload)))); err != nil {
		return err
	}
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(e.Payload); err != nil {
		return err
	}
	return zw.Close()
}
