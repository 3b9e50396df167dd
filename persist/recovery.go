package persist

import "sort"

// RecoveryResult is the reconstructed index state after loading the latest
// checkpoint (if any) and replaying every WAL entry written since.
type RecoveryResult struct {
	Segments []SegmentMetadata
	// Deletes maps segment id to the set of deleted document ids within it.
	Deletes     map[uint64]map[uint32]bool
	LastEntryID uint64
}

func markDeleted(deletes map[uint64]map[uint32]bool, segmentID uint64, docID uint32) {
	set, ok := deletes[segmentID]
	if !ok {
		set = make(map[uint32]bool)
		deletes[segmentID] = set
	}
	set[docID] = true
}

// Recover rebuilds index state from dir: the most recent valid checkpoint
// (if one exists) establishes the base segment list, then every WAL entry
// with an id greater than the checkpoint's entry id is replayed in order.
//
// A StartMerge entry with no matching EndMerge or CancelMerge — a merge
// that was in flight when the process crashed — is simply never applied:
// only EndMerge removes the old segments and installs the new one, so an
// incomplete merge leaves the pre-merge segments untouched. This is the
// "incomplete-merge rollback": there is nothing to undo because nothing
// was committed.
func Recover(dir Directory) (*RecoveryResult, error) {
	checkpointReader := NewCheckpointReader(dir)
	names, err := checkpointReader.ListCheckpoints()
	if err != nil {
		return nil, err
	}

	segByID := make(map[uint64]SegmentMetadata)
	var baseEntryID uint64

	// Try checkpoints newest first; an invalid one falls back to the next
	// older. If none loads, the last load error is returned.
	var loadErr error
	for i := len(names) - 1; i >= 0; i-- {
		header, segments, err := checkpointReader.Load("checkpoints/" + names[i])
		if err != nil {
			loadErr = err
			continue
		}
		loadErr = nil
		baseEntryID = header.EntryID
		for _, s := range segments {
			segByID[s.SegmentID] = s
		}
		break
	}
	if loadErr != nil {
		return nil, loadErr
	}

	entries, err := NewReader(dir).Replay()
	if err != nil {
		return nil, err
	}

	deletes := make(map[uint64]map[uint32]bool)
	lastEntryID := baseEntryID

	for _, e := range entries {
		if e.EntryID <= baseEntryID {
			continue
		}
		if e.EntryID > lastEntryID {
			lastEntryID = e.EntryID
		}

		switch e.Kind {
		case KindAddSegment:
			segByID[e.SegmentID] = SegmentMetadata{SegmentID: e.SegmentID, DocCount: e.DocCount}
		case KindStartMerge, KindCancelMerge:
			// No structural effect: segments are only removed by EndMerge.
		case KindEndMerge:
			for _, old := range e.OldSegmentIDs {
				delete(segByID, old)
			}
			segByID[e.NewSegmentID] = SegmentMetadata{SegmentID: e.NewSegmentID}
			for i, segID := range e.RemappedDelSeg {
				markDeleted(deletes, segID, e.RemappedDelDoc[i])
			}
		case KindDeleteDocuments:
			for i, segID := range e.DeleteSegmentIDs {
				markDeleted(deletes, segID, e.DeleteDocIDs[i])
			}
		case KindCheckpointMarker:
			// Informational only; the checkpoint itself already set baseEntryID.
		}
	}

	segments := make([]SegmentMetadata, 0, len(segByID))
	for _, s := range segByID {
		segments = append(segments, s)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].SegmentID < segments[j].SegmentID })

	return &RecoveryResult{Segments: segments, Deletes: deletes, LastEntryID: lastEntryID}, nil
}
