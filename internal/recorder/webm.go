package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// EBML element ids used for the duration patch.
const (
	idEBMLHeader = 0x1A45DFA3
	idSegment    = 0x18538067
	idInfo       = 0x1549A966
	idDuration   = 0x4489
)

// PatchWebmDuration writes durationMs into the Segment Info of a streamed
// WebM file. Browser MediaRecorder output has no Duration element and an
// unknown-size Segment, so players cannot seek; this either overwrites an
// existing Duration in place or rewrites the file with one inserted at the
// end of Info.
func PatchWebmDuration(path string, durationMs float64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	infoOffset, infoHeaderLen, infoSize, err := findInfo(f)
	if err != nil {
		return err
	}

	durOffset, durSize, err := findDuration(f, infoOffset+infoHeaderLen, infoSize)
	if err != nil {
		return err
	}
	if durOffset > 0 {
		return overwriteDuration(f, durOffset, durSize, durationMs)
	}
	return insertDuration(f, path, infoOffset, infoHeaderLen, infoSize, durationMs)
}

// findInfo walks the top level of the file and the Segment's children until
// it reaches the Info element. Returns its offset, the length of its
// id+size header and its content size.
func findInfo(r io.ReadSeeker) (offset, headerLen, size int64, err error) {
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return
	}
	var pos int64
	for {
		id, idLen, e := readElementID(r)
		if e != nil {
			err = fmt.Errorf("not a webm file: %w", e)
			return
		}
		contentSize, sizeLen, unknown, e := readElementSize(r)
		if e != nil {
			err = e
			return
		}
		header := int64(idLen + sizeLen)

		switch id {
		case idSegment:
			// Descend; a streamed Segment has unknown size.
			pos += header
			continue
		case idInfo:
			return pos, header, contentSize, nil
		}
		if unknown {
			err = fmt.Errorf("unexpected unknown-size element 0x%X", id)
			return
		}
		pos += header + contentSize
		if _, err = r.Seek(pos, io.SeekStart); err != nil {
			return
		}
	}
}

// findDuration scans Info's children for a Duration element. A zero offset
// means none exists.
func findDuration(r io.ReadSeeker, start, size int64) (offset, dataSize int64, err error) {
	pos := start
	end := start + size
	for pos < end {
		if _, err = r.Seek(pos, io.SeekStart); err != nil {
			return
		}
		id, idLen, e := readElementID(r)
		if e != nil {
			err = e
			return
		}
		contentSize, sizeLen, _, e := readElementSize(r)
		if e != nil {
			err = e
			return
		}
		header := int64(idLen + sizeLen)
		if id == idDuration {
			return pos + header, contentSize, nil
		}
		pos += header + contentSize
	}
	return 0, 0, nil
}

func overwriteDuration(f *os.File, offset, size int64, durationMs float64) error {
	var buf []byte
	switch size {
	case 4:
		buf = make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(durationMs)))
	case 8:
		buf = make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(durationMs))
	default:
		return fmt.Errorf("duration element has unsupported size %d", size)
	}
	_, err := f.WriteAt(buf, offset)
	return err
}

// insertDuration rewrites the file with a Duration appended to Info. Only
// Info's own size header grows; the streamed Segment size stays unknown so
// nothing else moves logically.
func insertDuration(f *os.File, path string, infoOffset, infoHeaderLen, infoSize int64, durationMs float64) error {
	durElement := encodeDuration(durationMs)
	newInfoSize := infoSize + int64(len(durElement))

	tmp, err := os.CreateTemp(filepath.Dir(path), "webmfix-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	err = func() error {
		// Everything before Info, unchanged.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, err := io.CopyN(tmp, f, infoOffset); err != nil {
			return err
		}
		// Re-read Info's id so its byte length is preserved exactly.
		idBuf := make([]byte, infoHeaderLen)
		if _, err := io.ReadFull(f, idBuf); err != nil {
			return err
		}
		idLen := vintLength(idBuf[0])
		if _, err := tmp.Write(idBuf[:idLen]); err != nil {
			return err
		}
		if _, err := tmp.Write(encodeSize(newInfoSize)); err != nil {
			return err
		}
		// Info's children, then the new Duration.
		if _, err := io.CopyN(tmp, f, infoSize); err != nil {
			return err
		}
		if _, err := tmp.Write(durElement); err != nil {
			return err
		}
		// The rest of the file.
		if _, err := io.Copy(tmp, f); err != nil {
			return err
		}
		return tmp.Sync()
	}()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func encodeDuration(durationMs float64) []byte {
	buf := make([]byte, 0, 11)
	buf = append(buf, 0x44, 0x89, 0x88)
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], math.Float64bits(durationMs))
	return append(buf, raw[:]...)
}

// encodeSize writes an 8-byte EBML size so any value fits without changing
// the encoding length.
func encodeSize(size int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(size))
	buf[0] |= 0x01
	return buf[:]
}

// vintLength counts the leading zero bits of the first byte plus one,
// which is the total byte length of an EBML variable integer.
func vintLength(first byte) int {
	if first == 0 {
		return 8
	}
	length := 1
	for mask := byte(0x80); mask > 0 && first&mask == 0; mask >>= 1 {
		length++
	}
	return length
}

// readElementID reads an EBML id with its marker bits kept, as ids are
// conventionally compared with markers included.
func readElementID(r io.Reader) (id uint32, length int, err error) {
	var first [1]byte
	if _, err = io.ReadFull(r, first[:]); err != nil {
		return
	}
	length = vintLength(first[0])
	if length > 4 {
		err = fmt.Errorf("invalid element id byte 0x%02X", first[0])
		return
	}
	id = uint32(first[0])
	rest := make([]byte, length-1)
	if _, err = io.ReadFull(r, rest); err != nil {
		return
	}
	for _, b := range rest {
		id = id<<8 | uint32(b)
	}
	return
}

// readElementSize reads an EBML size with marker bits stripped. unknown is
// set for the all-ones encoding used by streamed Segments.
func readElementSize(r io.Reader) (size int64, length int, unknown bool, err error) {
	var first [1]byte
	if _, err = io.ReadFull(r, first[:]); err != nil {
		return
	}
	length = vintLength(first[0])
	if length > 8 {
		err = fmt.Errorf("invalid size byte 0x%02X", first[0])
		return
	}
	value := uint64(first[0]) & (0xFF >> length)
	rest := make([]byte, length-1)
	if _, err = io.ReadFull(r, rest); err != nil {
		return
	}
	allOnes := value == (0xFF>>length)&0xFF
	for _, b := range rest {
		value = value<<8 | uint64(b)
		if b != 0xFF {
			allOnes = false
		}
	}
	if allOnes {
		unknown = true
	}
	size = int64(value)
	return
}
