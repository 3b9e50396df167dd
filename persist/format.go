package persist

import (
	"encoding/binary"
	"io"

	"github.com/nearkit/retrieve/errs"
)

// FormatVersion is the current on-disk format version for every structure
// in this package. A reader refuses to load a segment, WAL entry, or
// checkpoint written by an incompatible major version.
const FormatVersion uint32 = 1

var (
	segmentMagic    = [4]byte{'R', 'A', 'N', 'K'}
	walMagic        = [4]byte{'W', 'A', 'L', 0}
	checkpointMagic = [4]byte{'C', 'H', 'K', 'P'}
)

// SegmentFooter is the fixed 48-byte trailer written at the end of every
// segment file. It locates the single serialized data blob (an index's own
// WriteTo output) within the segment and carries enough metadata to
// validate the segment without parsing the blob itself.
type SegmentFooter struct {
	FormatVersion uint32
	DataOffset    uint64
	DataLen       uint64
	DocCount      uint32
	MaxDocID      uint32
	Checksum      uint32
}

// SegmentFooterSize is the footer's fixed on-disk size in bytes.
const SegmentFooterSize = 48

// Write serializes the footer in little-endian order, padded to
// SegmentFooterSize.
func (f SegmentFooter) Write(w io.Writer) error {
	buf := make([]byte, SegmentFooterSize)
	copy(buf[0:4], segmentMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], f.FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], f.DataOffset)
	binary.LittleEndian.PutUint64(buf[16:24], f.DataLen)
	binary.LittleEndian.PutUint32(buf[24:28], f.DocCount)
	binary.LittleEndian.PutUint32(buf[28:32], f.MaxDocID)
	binary.LittleEndian.PutUint32(buf[32:36], f.Checksum)
	// buf[36:48] left zero as padding.
	_, err := w.Write(buf)
	if err != nil {
		return errs.IO(err)
	}
	return nil
}

// ReadSegmentFooter parses a SegmentFooter from exactly SegmentFooterSize
// bytes, validating the magic and format version.
func ReadSegmentFooter(r io.Reader) (SegmentFooter, error) {
	buf := make([]byte, SegmentFooterSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return SegmentFooter{}, errs.Deserialization(err)
	}
	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != segmentMagic {
		return SegmentFooter{}, errs.Format("invalid segment magic", int(binary.LittleEndian.Uint32(segmentMagic[:])), int(binary.LittleEndian.Uint32(magic[:])))
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != FormatVersion {
		return SegmentFooter{}, errs.Format("segment format version mismatch", int(FormatVersion), int(version))
	}
	return SegmentFooter{
		FormatVersion: version,
		DataOffset:    binary.LittleEndian.Uint64(buf[8:16]),
		DataLen:       binary.LittleEndian.Uint64(buf[16:24]),
		DocCount:      binary.LittleEndian.Uint32(buf[24:28]),
		MaxDocID:      binary.LittleEndian.Uint32(buf[28:32]),
		Checksum:      binary.LittleEndian.Uint32(buf[32:36]),
	}, nil
}
