package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // wire-protocol mandated
	"encoding/binary"
	"fmt"
	stdhash "hash"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
)

// trackingReader sits directly on top of the wire and is the only thing
// that ever reads from it: it tracks a logical byte offset (so ofs-delta
// base references can be resolved without seeking) and optionally feeds
// every byte it reads into a running checksum. It implements ReadByte so
// the zlib reader never reads past the end of an entry's compressed
// stream and steals bytes belonging to the next entry's header.
type trackingReader struct {
	r       io.Reader
	h       stdhash.Hash
	hashing bool
	pos     int64
}

func newTrackingReader(r io.Reader) *trackingReader {
	return &trackingReader{r: r, h: sha1.New(), hashing: true} //nolint:gosec // wire-protocol mandated
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.pos += int64(n)
		if t.hashing {
			t.h.Write(p[:n])
		}
	}
	return n, err
}

func (t *trackingReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(t, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// decodedObject is what the decoder keeps around, keyed by both starting
// offset and final id, so later ofs-delta/ref-delta entries can resolve
// against it.
type decodedObject struct {
	typ     object.Type
	payload []byte
}

// Decode starts decoding a pack stream in a background goroutine and
// returns the single-producer single-consumer entry channel plus an
// error channel. The producer closes the entry channel once the final
// entry has been sent (or immediately, on error) and sends at most one
// value on the error channel before closing it.
func Decode(r io.Reader) (<-chan Entry, <-chan error) {
	entries := make(chan Entry)
	errCh := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errCh)
		if err := decode(r, entries); err != nil {
			errCh <- err
		}
	}()

	return entries, errCh
}

func decode(r io.Reader, out chan<- Entry) error {
	tr := newTrackingReader(r)

	var header [headerSize]byte
	if _, err := io.ReadFull(tr, header[:]); err != nil {
		return fmt.Errorf("could not read pack header: %w", ErrMalformedPack)
	}
	if !bytes.Equal(header[0:4], magic()) {
		return fmt.Errorf("invalid magic: %w", ErrMalformedPack)
	}
	if v := binary.BigEndian.Uint32(header[4:8]); v != version {
		return fmt.Errorf("unsupported pack version %d: %w", v, ErrMalformedPack)
	}
	count := binary.BigEndian.Uint32(header[8:12])

	byOffset := make(map[int64]decodedObject, count)
	byID := make(map[hash.Oid]decodedObject, count)

	for i := uint32(0); i < count; i++ {
		entryStart := tr.pos
		obj, err := decodeOneEntry(tr, entryStart, byOffset, byID)
		if err != nil {
			return fmt.Errorf("entry %d/%d: %w", i+1, count, err)
		}

		id := object.New(obj.typ, obj.payload).ID()
		byOffset[entryStart] = obj
		byID[id] = obj

		out <- Entry{ID: id, Type: obj.typ, Payload: obj.payload}
	}

	tr.hashing = false
	var trailer [hash.Size]byte
	if _, err := io.ReadFull(tr, trailer[:]); err != nil {
		return fmt.Errorf("could not read trailing checksum: %w", ErrMalformedPack)
	}
	computed := tr.h.Sum(nil)
	if !bytes.Equal(computed, trailer[:]) {
		return fmt.Errorf("trailing checksum mismatch: %w", ErrMalformedPack)
	}
	return nil
}

// decodeOneEntry reads one pack entry (header + body), resolving delta
// entries against objects already decoded in this pack.
func decodeOneEntry(tr *trackingReader, entryStart int64, byOffset map[int64]decodedObject, byID map[hash.Oid]decodedObject) (decodedObject, error) {
	typByte, size, err := readTypeAndSize(tr)
	if err != nil {
		return decodedObject{}, fmt.Errorf("could not read entry header: %w", ErrMalformedPack)
	}
	typ := object.Type(typByte)
	if !typ.IsValid() {
		return decodedObject{}, fmt.Errorf("unknown entry type %d: %w", typByte, ErrMalformedPack)
	}

	var base *decodedObject
	switch typ {
	case object.TypeRefDelta:
		var baseID [hash.Size]byte
		if _, err := io.ReadFull(tr, baseID[:]); err != nil {
			return decodedObject{}, fmt.Errorf("could not read ref-delta base: %w", ErrMalformedPack)
		}
		oid, err := hash.FromHex(baseID[:])
		if err != nil {
			return decodedObject{}, fmt.Errorf("invalid ref-delta base id: %w", ErrMalformedPack)
		}
		b, ok := byID[oid]
		if !ok {
			return decodedObject{}, fmt.Errorf("unresolved ref-delta base %s: %w", oid, ErrMalformedPack)
		}
		base = &b
	case object.TypeOfsDelta:
		distance, err := readDeltaOffset(tr)
		if err != nil {
			return decodedObject{}, fmt.Errorf("could not read ofs-delta offset: %w", ErrMalformedPack)
		}
		baseOffset := entryStart - int64(distance)
		b, ok := byOffset[baseOffset]
		if !ok {
			return decodedObject{}, fmt.Errorf("unresolved ofs-delta base at offset %d: %w", baseOffset, ErrMalformedPack)
		}
		base = &b
	}

	body, err := inflate(tr, size)
	if err != nil {
		return decodedObject{}, err
	}

	if base == nil {
		return decodedObject{typ: typ, payload: body}, nil
	}
	return applyDelta(*base, body)
}

// inflate decompresses exactly one zlib stream and validates its
// inflated length against the declared size.
func inflate(r io.Reader, declaredSize uint64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not open zlib stream: %w", ErrMalformedPack)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("could not inflate entry: %w", ErrMalformedPack)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("corrupt zlib stream: %w", ErrMalformedPack)
	}
	if uint64(buf.Len()) != declaredSize {
		return nil, fmt.Errorf("inflated size mismatch: expected %d, got %d: %w", declaredSize, buf.Len(), ErrMalformedPack)
	}
	return buf.Bytes(), nil
}

// applyDelta reconstructs a target object from a base object and a delta
// script: a source-size varint, a target-size varint, and a sequence of
// copy/insert instructions.
func applyDelta(base decodedObject, delta []byte) (decodedObject, error) {
	br := bytes.NewReader(delta)
	sourceSize, _, err := readSize(br)
	if err != nil {
		return decodedObject{}, fmt.Errorf("could not read delta source size: %w", ErrMalformedPack)
	}
	if int(sourceSize) != len(base.payload) {
		return decodedObject{}, fmt.Errorf("delta base size mismatch: expected %d, got %d: %w", len(base.payload), sourceSize, ErrMalformedPack)
	}
	targetSize, _, err := readSize(br)
	if err != nil {
		return decodedObject{}, fmt.Errorf("could not read delta target size: %w", ErrMalformedPack)
	}

	instructions := delta[len(delta)-br.Len():]
	out := make([]byte, 0, targetSize)

	for i := 0; i < len(instructions); i++ {
		instr := instructions[i]
		if isMSBSet(instr) {
			// Copy: bits 0-3 select which offset bytes follow, bits 4-6
			// select which length bytes follow.
			var offsetBytes [4]byte
			for j := uint(0); j < 4; j++ {
				if instr&(1<<j) != 0 {
					i++
					if i >= len(instructions) {
						return decodedObject{}, fmt.Errorf("truncated copy offset: %w", ErrMalformedPack)
					}
					offsetBytes[j] = instructions[i]
				}
			}
			var lenBytes [4]byte
			for j := uint(0); j < 3; j++ {
				if instr&(1<<(j+4)) != 0 {
					i++
					if i >= len(instructions) {
						return decodedObject{}, fmt.Errorf("truncated copy length: %w", ErrMalformedPack)
					}
					lenBytes[j] = instructions[i]
				}
			}
			offset := binary.LittleEndian.Uint32(offsetBytes[:])
			copyLen := binary.LittleEndian.Uint32(lenBytes[:])
			if copyLen == 0 {
				copyLen = 0x10000
			}
			if uint64(offset)+uint64(copyLen) > uint64(len(base.payload)) {
				return decodedObject{}, fmt.Errorf("copy instruction out of range: %w", ErrMalformedPack)
			}
			out = append(out, base.payload[offset:offset+copyLen]...)
		} else {
			// Insert: the instruction byte itself is the literal length.
			n := int(instr)
			if i+1+n > len(instructions) {
				return decodedObject{}, fmt.Errorf("truncated insert literal: %w", ErrMalformedPack)
			}
			out = append(out, instructions[i+1:i+1+n]...)
			i += n
		}
	}

	if uint64(len(out)) != targetSize {
		return decodedObject{}, fmt.Errorf("delta target size mismatch: expected %d, got %d: %w", targetSize, len(out), ErrMalformedPack)
	}
	return decodedObject{typ: base.typ, payload: out}, nil
}
