package persist

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/observability"
)

// EntryKind discriminates the WAL entry payload types. Every mutation that
// must survive a crash before it lands in a segment is recorded as one of
// these, in order, before the mutation is considered durable.
type EntryKind uint8

const (
	KindAddSegment EntryKind = iota
	KindStartMerge
	KindCancelMerge
	KindEndMerge
	KindDeleteDocuments
	KindCheckpointMarker
)

// Entry is a single WAL record. Only the fields relevant to Kind are
// populated; the rest are left at their zero value.
type Entry struct {
	EntryID   uint64
	Kind      EntryKind
	SegmentID uint64
	DocCount  uint32

	// StartMerge / CancelMerge / EndMerge
	TransactionID  uint64
	SegmentIDs     []uint64
	NewSegmentID   uint64
	OldSegmentIDs  []uint64
	RemappedDelSeg []uint64 // parallel to RemappedDelDoc
	RemappedDelDoc []uint32

	// DeleteDocuments
	DeleteSegmentIDs []uint64 // parallel to DeleteDocIDs
	DeleteDocIDs     []uint32

	// Checkpoint
	CheckpointPath string
	LastEntryID    uint64
}

// walSegmentHeaderSize is magic(4) + version(4) + startEntryID(8) + segmentID(8).
const walSegmentHeaderSize = 24

type walSegmentHeader struct {
	startEntryID uint64
	segmentID    uint64
}

func writeWALSegmentHeader(w io.Writer, h walSegmentHeader) error {
	buf := make([]byte, walSegmentHeaderSize)
	copy(buf[0:4], walMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], h.startEntryID)
	binary.LittleEndian.PutUint64(buf[16:24], h.segmentID)
	if _, err := w.Write(buf); err != nil {
		return errs.IO(err)
	}
	return nil
}

func readWALSegmentHeader(r io.Reader) (walSegmentHeader, error) {
	buf := make([]byte, walSegmentHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return walSegmentHeader{}, errs.Deserialization(err)
	}
	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != walMagic {
		return walSegmentHeader{}, errs.Format("invalid wal magic", 0, 0)
	}
	if version := binary.LittleEndian.Uint32(buf[4:8]); version != FormatVersion {
		return walSegmentHeader{}, errs.Format("wal format version mismatch", int(FormatVersion), int(version))
	}
	return walSegmentHeader{
		startEntryID: binary.LittleEndian.Uint64(buf[8:16]),
		segmentID:    binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

func encodeUint64Slice(buf *bytes.Buffer, vals []uint64) {
	binary.Write(buf, binary.LittleEndian, uint32(len(vals)))
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
}

func decodeUint64Slice(r *bytes.Reader) ([]uint64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeUint32Slice(buf *bytes.Buffer, vals []uint32) {
	binary.Write(buf, binary.LittleEndian, uint32(len(vals)))
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
}

func decodeUint32Slice(r *bytes.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// encodePayload serializes the entry's Kind-specific fields. EntryID and
// Kind travel in the record header, not the payload.
func encodePayload(e Entry) []byte {
	var buf bytes.Buffer
	switch e.Kind {
	case KindAddSegment:
		binary.Write(&buf, binary.LittleEndian, e.SegmentID)
		binary.Write(&buf, binary.LittleEndian, e.DocCount)
	case KindStartMerge, KindCancelMerge:
		binary.Write(&buf, binary.LittleEndian, e.TransactionID)
		encodeUint64Slice(&buf, e.SegmentIDs)
	case KindEndMerge:
		binary.Write(&buf, binary.LittleEndian, e.TransactionID)
		binary.Write(&buf, binary.LittleEndian, e.NewSegmentID)
		encodeUint64Slice(&buf, e.OldSegmentIDs)
		encodeUint64Slice(&buf, e.RemappedDelSeg)
		encodeUint32Slice(&buf, e.RemappedDelDoc)
	case KindDeleteDocuments:
		encodeUint64Slice(&buf, e.DeleteSegmentIDs)
		encodeUint32Slice(&buf, e.DeleteDocIDs)
	case KindCheckpointMarker:
		path := []byte(e.CheckpointPath)
		binary.Write(&buf, binary.LittleEndian, uint32(len(path)))
		buf.Write(path)
		binary.Write(&buf, binary.LittleEndian, e.LastEntryID)
	}
	return buf.Bytes()
}

func decodePayload(kind EntryKind, entryID uint64, payload []byte) (Entry, error) {
	e := Entry{EntryID: entryID, Kind: kind}
	r := bytes.NewReader(payload)
	var err error
	switch kind {
	case KindAddSegment:
		err = binary.Read(r, binary.LittleEndian, &e.SegmentID)
		if err == nil {
			err = binary.Read(r, binary.LittleEndian, &e.DocCount)
		}
	case KindStartMerge, KindCancelMerge:
		err = binary.Read(r, binary.LittleEndian, &e.TransactionID)
		if err == nil {
			e.SegmentIDs, err = decodeUint64Slice(r)
		}
	case KindEndMerge:
		err = binary.Read(r, binary.LittleEndian, &e.TransactionID)
		if err == nil {
			err = binary.Read(r, binary.LittleEndian, &e.NewSegmentID)
		}
		if err == nil {
			e.OldSegmentIDs, err = decodeUint64Slice(r)
		}
		if err == nil {
			e.RemappedDelSeg, err = decodeUint64Slice(r)
		}
		if err == nil {
			e.RemappedDelDoc, err = decodeUint32Slice(r)
		}
	case KindDeleteDocuments:
		e.DeleteSegmentIDs, err = decodeUint64Slice(r)
		if err == nil {
			e.DeleteDocIDs, err = decodeUint32Slice(r)
		}
	case KindCheckpointMarker:
		var pathLen uint32
		err = binary.Read(r, binary.LittleEndian, &pathLen)
		if err == nil {
			path := make([]byte, pathLen)
			_, err = io.ReadFull(r, path)
			e.CheckpointPath = string(path)
		}
		if err == nil {
			err = binary.Read(r, binary.LittleEndian, &e.LastEntryID)
		}
	default:
		return Entry{}, errs.Format("unknown wal entry kind", 0, int(kind))
	}
	if err != nil {
		return Entry{}, errs.Deserialization(err)
	}
	return e, nil
}

// encodeRecord produces the on-disk bytes for one WAL record:
// length(4) + entryID(8) + kind(1) + checksum(4) + payload. length covers
// the entire record, including its own 4 bytes.
func encodeRecord(e Entry) []byte {
	payload := encodePayload(e)
	checksum := crc32.ChecksumIEEE(payload)

	recordBody := make([]byte, 8+1+4+len(payload))
	binary.LittleEndian.PutUint64(recordBody[0:8], e.EntryID)
	recordBody[8] = byte(e.Kind)
	binary.LittleEndian.PutUint32(recordBody[9:13], checksum)
	copy(recordBody[13:], payload)

	out := make([]byte, 4+len(recordBody))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	copy(out[4:], recordBody)
	return out
}

// decodeRecord reads one record from r, verifying its checksum.
func decodeRecord(r io.Reader) (Entry, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Entry{}, err // EOF or truncated — caller decides how to treat it.
	}
	length := binary.LittleEndian.Uint32(lengthBuf[:])
	if length < 4 {
		return Entry{}, errs.Format("wal record length too small", 4, int(length))
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return Entry{}, err
	}
	entryID := binary.LittleEndian.Uint64(body[0:8])
	kind := EntryKind(body[8])
	checksum := binary.LittleEndian.Uint32(body[9:13])
	payload := body[13:]

	if crc32.ChecksumIEEE(payload) != checksum {
		return Entry{}, errs.ChecksumMismatch(checksum, crc32.ChecksumIEEE(payload))
	}
	return decodePayload(kind, entryID, payload)
}

const defaultWALSegmentSizeLimit = 10 * 1024 * 1024

// Writer appends entries to a growing sequence of WAL segment files under
// "wal/" in a Directory, rotating to a new segment once the current one
// exceeds segmentSizeLimit (defaultWALSegmentSizeLimit, 10 MiB).
type Writer struct {
	mu sync.Mutex

	dir              Directory
	segmentSizeLimit int64

	currentSegmentID uint64
	currentEntryID   uint64
	currentOffset    int64
}

// NewWriter returns a Writer appending into dir's "wal/" directory,
// starting fresh at segment 1, entry 1.
func NewWriter(dir Directory) *Writer {
	return &Writer{dir: dir, segmentSizeLimit: defaultWALSegmentSizeLimit, currentSegmentID: 1, currentEntryID: 1}
}

func (w *Writer) segmentPath(id uint64) string {
	return "wal/wal_" + itoa(id) + ".log"
}

// Append assigns the entry the next entry id, writes it to the current
// segment (rotating first if the size limit is exceeded), and returns the
// assigned id.
func (w *Writer) Append(e Entry) (id uint64, err error) {
	defer func() {
		if err == nil {
			observability.GetGlobalMetrics().RecordWALAppend()
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentOffset > w.segmentSizeLimit {
		w.currentSegmentID++
		w.currentOffset = 0
	}

	if err := w.dir.CreateDirAll("wal"); err != nil {
		return 0, err
	}

	e.EntryID = w.currentEntryID
	path := w.segmentPath(w.currentSegmentID)

	if w.currentOffset == 0 {
		f, err := w.dir.CreateFile(path)
		if err != nil {
			return 0, err
		}
		if err := writeWALSegmentHeader(f, walSegmentHeader{startEntryID: e.EntryID, segmentID: w.currentSegmentID}); err != nil {
			f.Close()
			return 0, err
		}
		if err := f.Close(); err != nil {
			return 0, errs.IO(err)
		}
		w.currentOffset = walSegmentHeaderSize
	}

	record := encodeRecord(e)
	f, err := w.dir.AppendFile(path)
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(record); err != nil {
		f.Close()
		return 0, errs.IO(err)
	}
	if err := f.Close(); err != nil {
		return 0, errs.IO(err)
	}

	w.currentOffset += int64(len(record))
	w.currentEntryID++
	return e.EntryID, nil
}

// Reader replays WAL segments from a Directory in segment order.
type Reader struct {
	dir Directory
}

// NewReader returns a Reader over dir's "wal/" directory.
func NewReader(dir Directory) *Reader {
	return &Reader{dir: dir}
}

// Replay returns every entry recorded across all WAL segments, in order.
// It stops at the first corrupt record (bad CRC or truncated length/body)
// rather than failing the whole replay — a half-written tail record is
// expected after a crash and everything durably written before it is
// still valid.
func (r *Reader) Replay() ([]Entry, error) {
	var entries []Entry
	haltedByCorruption := false
	defer func() {
		observability.GetGlobalMetrics().RecordWALReplay(len(entries), haltedByCorruption)
	}()

	names, err := r.dir.ListDir("wal")
	if err != nil {
		return entries, nil // no wal directory yet: nothing to replay.
	}
	var logFiles []string
	for _, n := range names {
		if strings.HasSuffix(n, ".log") {
			logFiles = append(logFiles, n)
		}
	}
	// wal_<id>.log names are not zero padded: order by length, then name,
	// so segments replay in segment-id order.
	sort.Slice(logFiles, func(i, j int) bool {
		if len(logFiles[i]) != len(logFiles[j]) {
			return len(logFiles[i]) < len(logFiles[j])
		}
		return logFiles[i] < logFiles[j]
	})

	for _, name := range logFiles {
		f, err := r.dir.OpenFile("wal/" + name)
		if err != nil {
			return entries, err
		}
		if _, err := readWALSegmentHeader(f); err != nil {
			f.Close()
			haltedByCorruption = true
			return entries, nil
		}
		for {
			entry, err := decodeRecord(f)
			if err != nil {
				if err != io.EOF {
					haltedByCorruption = true
				}
				break // EOF ends this segment; corruption ends the replay.
			}
			entries = append(entries, entry)
		}
		f.Close()
		if haltedByCorruption {
			return entries, nil
		}
	}
	return entries, nil
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}
