package archive

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/zip"

	"github.com/asheshgoplani/evalgrep/internal/logging"
)

var archiveLog = logging.ForComponent(logging.CompArchive)

// FormatError reports a file that is not a readable eval archive. It is fatal
// for that file only.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a valid eval archive: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Entry describes one named member of an archive as recorded in the central
// directory. It is immutable once the archive is opened.
type Entry struct {
	Name             string
	Index            int   // position in the central directory
	CompressedSize   uint64
	UncompressedSize uint64
	Offset           int64 // start of the compressed data, -1 if the local header is unreadable

	// Hints derived from Name; see ParseEntryName.
	SampleID string
	Epoch    int
	IsSample bool
}

// Handle is one open archive. It is owned by a single goroutine and must be
// closed when scanning finishes.
type Handle struct {
	path    string
	rc      *zip.ReadCloser
	entries []Entry
}

// Open reads the archive's central directory. No entry body is decompressed.
func Open(path string) (*Handle, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	entries := make([]Entry, 0, len(rc.File))
	for i, f := range rc.File {
		offset, err := f.DataOffset()
		if err != nil {
			archiveLog.Debug("entry_offset_unreadable",
				slog.String("path", path),
				slog.String("entry", f.Name),
				slog.String("error", err.Error()))
			offset = -1
		}
		id, epoch, isSample := ParseEntryName(f.Name)
		entries = append(entries, Entry{
			Name:             f.Name,
			Index:            i,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			Offset:           offset,
			SampleID:         id,
			Epoch:            epoch,
			IsSample:         isSample,
		})
	}

	archiveLog.Debug("archive_opened",
		slog.String("path", path),
		slog.Int("entries", len(entries)))

	return &Handle{path: path, rc: rc, entries: entries}, nil
}

// Path returns the file the handle was opened from.
func (h *Handle) Path() string { return h.path }

// Entries returns the entries in archive-stored order. The slice must not be
// modified.
func (h *Handle) Entries() []Entry { return h.entries }

// OpenEntry decompresses the body of e.
func (h *Handle) OpenEntry(e Entry) (io.ReadCloser, error) {
	if e.Index < 0 || e.Index >= len(h.rc.File) || h.rc.File[e.Index].Name != e.Name {
		return nil, fmt.Errorf("entry %q does not belong to %s", e.Name, h.path)
	}
	return h.rc.File[e.Index].Open()
}

// Close releases the underlying file.
func (h *Handle) Close() error {
	return h.rc.Close()
}
