package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"voxstream/internal/transcribe"
)

// appendFile opens path with O_APPEND|O_CREATE, writes b, and Syncs before
// returning, mirroring the teacher's bufio write-then-flush discipline for
// append-only files.
func appendFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// TranscriptWriter appends one line per TranscriptionEvent to
// transcripts/transcript_<session>.txt, and, when the event carries a
// translation, two further lines to
// translations/translation_<session>.txt.
type TranscriptWriter struct {
	transcriptPath  string
	translationPath string
}

// NewTranscriptWriter creates transcriptsDir and translationsDir if needed.
func NewTranscriptWriter(transcriptsDir, translationsDir, sessionID string) (*TranscriptWriter, error) {
	if err := os.MkdirAll(transcriptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: creating transcripts dir: %w", err)
	}
	if err := os.MkdirAll(translationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: creating translations dir: %w", err)
	}
	return &TranscriptWriter{
		transcriptPath:  filepath.Join(transcriptsDir, fmt.Sprintf("transcript_%s.txt", sessionID)),
		translationPath: filepath.Join(translationsDir, fmt.Sprintf("translation_%s.txt", sessionID)),
	}, nil
}

// WriteEvent appends ev's transcript line, and its translation lines if
// present.
func (w *TranscriptWriter) WriteEvent(ev transcribe.Event) error {
	line := fmt.Sprintf("[%s] %s\n", ev.Language, ev.Text)
	if err := appendFile(w.transcriptPath, []byte(line)); err != nil {
		return fmt.Errorf("persistence: appending transcript: %w", err)
	}

	if ev.Translation == nil {
		return nil
	}
	block := fmt.Sprintf("[%s] %s\n[%s] %s\n\n", ev.Language, ev.Text, ev.Translation.Language, ev.Translation.Text)
	if err := appendFile(w.translationPath, []byte(block)); err != nil {
		return fmt.Errorf("persistence: appending translation: %w", err)
	}
	return nil
}
