// Package multipart implements the field sink fed by a multipart/form-data
// boundary parser: one Field per part, accumulating the part's bytes either
// in memory or in a uniquely named temporary file.
package multipart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/serviohq/servio/pkg/observability"
)

var (
	// ErrInvalidState is returned when an operation is called before the
	// field's kind was set, or against the wrong kind or storage mode.
	ErrInvalidState = errors.New("multipart: invalid field state")

	// ErrIO is returned when the backing temporary file cannot be created or
	// written.
	ErrIO = errors.New("multipart: temp file i/o")
)

// Kind discriminates what a field holds.
type Kind int

const (
	// KindUnset means SetKind has not been called yet. Most operations are
	// illegal in this state.
	KindUnset Kind = iota

	// KindText is a plain form value.
	KindText

	// KindFile is an uploaded file.
	KindFile
)

// Storage selects where file fields accumulate their content.
type Storage int

const (
	// MemoryStorage keeps uploaded files in memory.
	MemoryStorage Storage = iota

	// FilesystemStorage spools uploaded files to temporary files.
	FilesystemStorage
)

// storageMode is the process-wide storage policy, latched per field on first
// Accept.
var storageMode atomic.Int32

// SetFieldStorage selects the process-wide storage mode for file fields.
func SetFieldStorage(s Storage) {
	storageMode.Store(int32(s))
}

// FieldStorage returns the process-wide storage mode for file fields.
func FieldStorage() Storage {
	return Storage(storageMode.Load())
}

// Field accumulates the bytes of one multipart part. The boundary parser
// creates it when a part header is seen, calls SetKind once and Accept for
// every body chunk, and Closes it when done with the part. A Field is owned
// by a single connection worker and is not safe for concurrent use.
//
// Exactly one of buf and file backs a file field, selected by the storage
// mode in effect at the first Accept.
type Field struct {
	kind     Kind
	storage  Storage // meaningful once latched
	latched  bool
	buf      []byte
	file     *os.File
	tempDir  string
	tempName string
	fileName string
	mimeType string
}

// NewField creates an empty field.
func NewField() *Field {
	return &Field{}
}

// SetKind fixes the field's kind. Setting the same kind again is a no-op;
// changing an already-set kind fails with ErrInvalidState.
func (f *Field) SetKind(k Kind) error {
	if k != KindText && k != KindFile {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidState, k)
	}
	if f.kind != KindUnset && f.kind != k {
		return fmt.Errorf("%w: kind already set", ErrInvalidState)
	}
	f.kind = k
	return nil
}

// Kind returns the field's kind, failing if none was set.
func (f *Field) Kind() (Kind, error) {
	if f.kind == KindUnset {
		return KindUnset, fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	return f.kind, nil
}

// SetTempDir sets the directory used for spooled uploads. Must be set before
// the first Accept under FilesystemStorage.
func (f *Field) SetTempDir(dir string) {
	f.tempDir = dir
}

// SetFileName records the client-supplied file name of an upload.
func (f *Field) SetFileName(name string) {
	f.fileName = name
}

// SetMIMEType records the declared content type of an upload.
func (f *Field) SetMIMEType(mimeType string) {
	f.mimeType = mimeType
}

// Accept appends body bytes to the field. Text fields and file fields under
// MemoryStorage grow an in-memory buffer; file fields under
// FilesystemStorage lazily create their temp file and append to it, with the
// write reaching the file before Accept returns.
func (f *Field) Accept(b []byte) error {
	switch f.kind {
	case KindText:
		f.buf = append(f.buf, b...)
	case KindFile:
		if !f.latched {
			f.storage = FieldStorage()
			f.latched = true
		}
		if f.storage == MemoryStorage {
			f.buf = append(f.buf, b...)
			break
		}
		if f.file == nil {
			if f.tempDir == "" {
				return fmt.Errorf("%w: no temp directory set", ErrIO)
			}
			file, name, err := createTempFile(f.tempDir)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			f.file = file
			f.tempName = name
			observability.Get().TempFilesCreated.Inc()
		}
		if _, err := f.file.Write(b); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrIO, f.tempName, err)
		}
	default:
		return fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	observability.Get().MultipartBytes.Add(float64(len(b)))
	return nil
}

// storageInEffect is the storage mode accessors must check against: the
// latched mode once Accept ran, the process-wide setting before that.
func (f *Field) storageInEffect() Storage {
	if f.latched {
		return f.storage
	}
	return FieldStorage()
}

// TextContent returns the accumulated value of a text field.
func (f *Field) TextContent() (string, error) {
	if f.kind == KindUnset {
		return "", fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	if f.kind != KindText {
		return "", fmt.Errorf("%w: not a text field", ErrInvalidState)
	}
	return string(f.buf), nil
}

// FileContent returns the bytes of a file field held in memory. It fails for
// spooled uploads; use TempFilePath for those.
func (f *Field) FileContent() ([]byte, error) {
	if f.kind == KindUnset {
		return nil, fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	if f.kind != KindFile {
		return nil, fmt.Errorf("%w: not a file field", ErrInvalidState)
	}
	if f.storageInEffect() != MemoryStorage {
		return nil, fmt.Errorf("%w: uploads are stored in the filesystem", ErrInvalidState)
	}
	return f.buf, nil
}

// FileSize returns the size of a file field held in memory.
func (f *Field) FileSize() (int64, error) {
	content, err := f.FileContent()
	if err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

// TempFilePath returns the path of the spooled upload backing a file field.
func (f *Field) TempFilePath() (string, error) {
	if f.kind == KindUnset {
		return "", fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	if f.kind != KindFile {
		return "", fmt.Errorf("%w: not a file field", ErrInvalidState)
	}
	if f.storageInEffect() != FilesystemStorage {
		return "", fmt.Errorf("%w: uploads are stored in memory", ErrInvalidState)
	}
	if f.file == nil {
		return "", fmt.Errorf("%w: no data accepted yet", ErrInvalidState)
	}
	return filepath.Join(f.tempDir, f.tempName), nil
}

// FileName returns the client-supplied name of an upload.
func (f *Field) FileName() (string, error) {
	if f.kind == KindUnset {
		return "", fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	if f.kind != KindFile {
		return "", fmt.Errorf("%w: not a file field", ErrInvalidState)
	}
	return f.fileName, nil
}

// MIMEType returns the declared content type of an upload.
func (f *Field) MIMEType() (string, error) {
	if f.kind == KindUnset {
		return "", fmt.Errorf("%w: kind not set", ErrInvalidState)
	}
	if f.kind != KindFile {
		return "", fmt.Errorf("%w: not a file field", ErrInvalidState)
	}
	return f.mimeType, nil
}

// Close releases the field. A spooled upload's temp file is closed and
// deleted; Close is safe to call on every exit path, including after errors.
func (f *Field) Close() error {
	if f.file == nil {
		return nil
	}
	path := filepath.Join(f.tempDir, f.tempName)
	closeErr := f.file.Close()
	removeErr := os.Remove(path)
	f.file = nil
	if removeErr == nil {
		observability.Get().TempFilesDeleted.Inc()
	}
	return errors.Join(closeErr, removeErr)
}
