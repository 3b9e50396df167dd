package persist

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/observability"
)

// checkpointHeaderSize is magic(4) + version(4) + entryID(8) +
// segmentCount(4) + segmentListOffset(8) + docCount(8) + createdAt(8) +
// checksum(4) = 48 bytes.
const checkpointHeaderSize = 48

// CheckpointHeader is the fixed-size prefix of a checkpoint file; the
// variable-length segment list follows immediately after it.
type CheckpointHeader struct {
	EntryID           uint64
	SegmentCount      uint32
	SegmentListOffset uint64
	DocCount          uint64
	CreatedAt         uint64
	Checksum          uint32
}

// SegmentMetadata describes one segment captured by a checkpoint.
type SegmentMetadata struct {
	SegmentID uint64
	Path      string
	DocCount  uint32
	MaxDocID  uint32
	SizeBytes uint64
}

func encodeSegmentList(segments []SegmentMetadata) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(segments)))
	for _, s := range segments {
		binary.Write(&buf, binary.LittleEndian, s.SegmentID)
		path := []byte(s.Path)
		binary.Write(&buf, binary.LittleEndian, uint32(len(path)))
		buf.Write(path)
		binary.Write(&buf, binary.LittleEndian, s.DocCount)
		binary.Write(&buf, binary.LittleEndian, s.MaxDocID)
		binary.Write(&buf, binary.LittleEndian, s.SizeBytes)
	}
	return buf.Bytes()
}

func decodeSegmentList(data []byte) ([]SegmentMetadata, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	segments := make([]SegmentMetadata, count)
	for i := range segments {
		if err := binary.Read(r, binary.LittleEndian, &segments[i].SegmentID); err != nil {
			return nil, err
		}
		var pathLen uint32
		if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
			return nil, err
		}
		path := make([]byte, pathLen)
		if _, err := io.ReadFull(r, path); err != nil {
			return nil, err
		}
		segments[i].Path = string(path)
		if err := binary.Read(r, binary.LittleEndian, &segments[i].DocCount); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &segments[i].MaxDocID); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &segments[i].SizeBytes); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

func checkpointChecksum(entryID uint64, segmentCount uint32, segmentListOffset, docCount, createdAt uint64, segmentList []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(checkpointMagic[:])
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], FormatVersion)
	h.Write(scratch[:4])
	binary.LittleEndian.PutUint64(scratch[:], entryID)
	h.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:4], segmentCount)
	h.Write(scratch[:4])
	binary.LittleEndian.PutUint64(scratch[:], segmentListOffset)
	h.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], docCount)
	h.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], createdAt)
	h.Write(scratch[:])
	h.Write(segmentList)
	return h.Sum32()
}

// CheckpointWriter creates full-snapshot checkpoints. Each checkpoint
// fsyncs the header plus one file per segment it copies in — a burst that
// can starve concurrent WAL fsyncs on the same volume — so copies are
// paced through a rate.Limiter instead of firing all at once.
type CheckpointWriter struct {
	dir     Directory
	limiter *rate.Limiter
}

// NewCheckpointWriter returns a CheckpointWriter that paces segment-file
// copies to at most fsyncsPerSecond per second (plus a burst of the same
// size). A non-positive fsyncsPerSecond disables pacing (rate.Inf).
func NewCheckpointWriter(dir Directory, fsyncsPerSecond int) *CheckpointWriter {
	limit := rate.Inf
	burst := 1
	if fsyncsPerSecond > 0 {
		limit = rate.Limit(fsyncsPerSecond)
		burst = fsyncsPerSecond
	}
	return &CheckpointWriter{dir: dir, limiter: rate.NewLimiter(limit, burst)}
}

// CreateCheckpoint writes a checkpoint file covering entryID and the given
// segment list, using Directory.AtomicWrite for crash safety, then copies
// each segment's files into the checkpoint's own directory so it is
// self-contained, pacing those copies through the writer's rate limiter.
// Returns the checkpoint's path.
func (w *CheckpointWriter) CreateCheckpoint(ctx context.Context, entryID uint64, segments []SegmentMetadata, createdAt int64) (path string, err error) {
	defer func() {
		if err == nil {
			observability.GetGlobalMetrics().RecordCheckpoint()
		}
	}()

	if err := w.dir.CreateDirAll("checkpoints"); err != nil {
		return "", err
	}

	segmentList := encodeSegmentList(segments)
	var docCount uint64
	for _, s := range segments {
		docCount += uint64(s.DocCount)
	}
	listOffset := uint64(checkpointHeaderSize)
	checksum := checkpointChecksum(entryID, uint32(len(segments)), listOffset, docCount, uint64(createdAt), segmentList)

	header := make([]byte, checkpointHeaderSize)
	copy(header[0:4], checkpointMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], entryID)
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(segments)))
	binary.LittleEndian.PutUint64(header[20:28], listOffset)
	binary.LittleEndian.PutUint64(header[28:36], docCount)
	binary.LittleEndian.PutUint64(header[36:44], uint64(createdAt))
	binary.LittleEndian.PutUint32(header[44:48], checksum)

	data := append(header, segmentList...)
	path = "checkpoints/checkpoint_" + itoa(entryID) + ".bin"
	if err := w.dir.AtomicWrite(path, data); err != nil {
		return "", err
	}

	checkpointSegmentsDir := "checkpoints/checkpoint_" + itoa(entryID) + "/segments"
	if err := w.dir.CreateDirAll(checkpointSegmentsDir); err != nil {
		return "", err
	}
	for _, s := range segments {
		if s.Path == "" {
			continue
		}
		if err := w.copySegment(ctx, s, checkpointSegmentsDir); err != nil {
			if errs.Is(err, errs.KindNotFound) {
				continue // segment has no files to copy (e.g. not yet flushed).
			}
			return "", err
		}
	}

	return path, nil
}

// copySegment copies every file under a segment's directory into the
// checkpoint's own segment directory, waiting on the rate limiter before
// each fsync-triggering AtomicWrite.
func (w *CheckpointWriter) copySegment(ctx context.Context, s SegmentMetadata, checkpointSegmentsDir string) error {
	files, err := w.dir.ListDir(s.Path)
	if err != nil {
		return err
	}
	destDir := checkpointSegmentsDir + "/segment_" + itoa(s.SegmentID)
	for _, name := range files {
		if err := w.limiter.Wait(ctx); err != nil {
			return errs.IO(err)
		}
		src, err := w.dir.OpenFile(s.Path + "/" + name)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return errs.IO(err)
		}
		if err := w.dir.AtomicWrite(destDir+"/"+name, data); err != nil {
			return err
		}
	}
	return nil
}

// CheckpointReader loads checkpoints.
type CheckpointReader struct {
	dir Directory
}

func NewCheckpointReader(dir Directory) *CheckpointReader {
	return &CheckpointReader{dir: dir}
}

// Load reads and validates the checkpoint at path, returning its header and
// segment list.
func (r *CheckpointReader) Load(path string) (CheckpointHeader, []SegmentMetadata, error) {
	f, err := r.dir.OpenFile(path)
	if err != nil {
		return CheckpointHeader{}, nil, err
	}
	defer f.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(f); err != nil {
		return CheckpointHeader{}, nil, errs.IO(err)
	}
	data := buf.Bytes()
	if len(data) < checkpointHeaderSize {
		return CheckpointHeader{}, nil, errs.Format("checkpoint truncated", checkpointHeaderSize, len(data))
	}

	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != checkpointMagic {
		return CheckpointHeader{}, nil, errs.Format("invalid checkpoint magic", 0, 0)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return CheckpointHeader{}, nil, errs.Format("checkpoint format version mismatch", int(FormatVersion), int(version))
	}

	header := CheckpointHeader{
		EntryID:           binary.LittleEndian.Uint64(data[8:16]),
		SegmentCount:      binary.LittleEndian.Uint32(data[16:20]),
		SegmentListOffset: binary.LittleEndian.Uint64(data[20:28]),
		DocCount:          binary.LittleEndian.Uint64(data[28:36]),
		CreatedAt:         binary.LittleEndian.Uint64(data[36:44]),
		Checksum:          binary.LittleEndian.Uint32(data[44:48]),
	}

	if int(header.SegmentListOffset) > len(data) {
		return CheckpointHeader{}, nil, errs.Format("segment list offset beyond file size", len(data), int(header.SegmentListOffset))
	}
	segmentListBytes := data[header.SegmentListOffset:]

	expected := checkpointChecksum(header.EntryID, header.SegmentCount, header.SegmentListOffset, header.DocCount, header.CreatedAt, segmentListBytes)
	if expected != header.Checksum {
		return CheckpointHeader{}, nil, errs.ChecksumMismatch(header.Checksum, expected)
	}

	segments, err := decodeSegmentList(segmentListBytes)
	if err != nil {
		return CheckpointHeader{}, nil, errs.Deserialization(err)
	}
	return header, segments, nil
}

// ListCheckpoints returns every checkpoint file directly under
// "checkpoints/", sorted by entry id. Names are checkpoint_<id>.bin without
// zero padding, so they are ordered by length first and then by name.
func (r *CheckpointReader) ListCheckpoints() ([]string, error) {
	names, err := r.dir.ListDir("checkpoints")
	if err != nil {
		return nil, nil // no checkpoints directory yet: nothing to list.
	}
	var out []string
	for _, n := range names {
		// Skip the segment files copied into checkpoint_<id>/ subdirectories.
		if strings.HasSuffix(n, ".bin") && !strings.Contains(n, "/") {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out, nil
}
