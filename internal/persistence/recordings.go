package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"voxstream/internal/segment"
)

// RecordingsWriter persists each emitted Segment's PCM to
// recordings/segment_<id>.wav, using write-to-temp + rename so a reader
// never observes a partially written file.
type RecordingsWriter struct {
	dir        string
	sampleRate int
	logger     *zap.SugaredLogger
}

// NewRecordingsWriter creates dir if needed and returns a RecordingsWriter
// rooted there.
func NewRecordingsWriter(dir string, sampleRate int, logger *zap.SugaredLogger) (*RecordingsWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: creating recordings dir: %w", err)
	}
	return &RecordingsWriter{dir: dir, sampleRate: sampleRate, logger: logger}, nil
}

func (w *RecordingsWriter) segmentPath(id int64) string {
	return filepath.Join(w.dir, fmt.Sprintf("segment_%d.wav", id))
}

// WriteSegment writes seg.PCM to its final segment_<id>.wav path via a
// temp file + rename, so the file only ever appears complete.
func (w *RecordingsWriter) WriteSegment(seg segment.Segment) error {
	final := w.segmentPath(seg.ID)
	tmp := final + ".tmp"
	if err := writeWAVFile(tmp, w.sampleRate, seg.PCM); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: writing segment %d: %w", seg.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: renaming segment %d: %w", seg.ID, err)
	}
	return nil
}

// segmentIDs lists every segment_<id>.wav currently in dir, in id order.
func (w *RecordingsWriter) segmentIDs() ([]int64, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "segment_") || !strings.HasSuffix(name, ".wav") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "segment_"), ".wav")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Combine concatenates every alive segment_<id>.wav, in id order, into
// combinedPath, then deletes the per-segment files unless keepSegments is
// set. It returns the number of segments combined.
func (w *RecordingsWriter) Combine(combinedPath string, keepSegments bool) (int, error) {
	ids, err := w.segmentIDs()
	if err != nil {
		return 0, fmt.Errorf("persistence: listing segments: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	totalSamples := 0
	for _, id := range ids {
		n, err := wavSampleCount(w.segmentPath(id))
		if err != nil {
			return 0, fmt.Errorf("persistence: reading segment %d header: %w", id, err)
		}
		totalSamples += n
	}

	tmp := combinedPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("persistence: creating combined recording: %w", err)
	}
	if err := writeWAVHeader(out, w.sampleRate, totalSamples); err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("persistence: writing combined header: %w", err)
	}
	for _, id := range ids {
		if _, err := copyWAVSamples(out, w.segmentPath(id)); err != nil {
			out.Close()
			os.Remove(tmp)
			return 0, fmt.Errorf("persistence: copying segment %d: %w", id, err)
		}
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, combinedPath); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("persistence: renaming combined recording: %w", err)
	}

	if !keepSegments {
		for _, id := range ids {
			if err := os.Remove(w.segmentPath(id)); err != nil {
				w.logger.Warnw("failed to remove segment after combine", "segment_id", id, "error", err)
			}
		}
	}
	return len(ids), nil
}
