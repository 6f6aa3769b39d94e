// Package store lays documents out on disk and makes sure only validated
// documents ever appear at their final path.
package store

import (
	"bufio"
	"bytes"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/telemetry"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	report_store_save     = "store.save"
	report_store_artifact = "store.write-artifact"
)

var ErrInvalidDocument = errors.New("document is not a pdf")

var pdfMagic = []byte("%PDF")

// Document is a document at its final path.
type Document struct {
	Path      string
	ByteSize  int64
	Validated bool
	// Existing is set when the document was already on disk and nothing
	// was fetched.
	Existing bool
}

type Store struct {
	root string
	tel  telemetry.API

	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(root string, tel telemetry.API) *Store {
	assert.NotEmptyStr(root)
	assert.NotNil(tel)
	return &Store{
		root:  root,
		tel:   telemetry.NewScopedAPI("store", tel),
		locks: map[string]*sync.Mutex{},
	}
}

func (s *Store) Root() string {
	return s.root
}

// Lock serializes work on a single path, the returned function unlocks it.
func (s *Store) Lock(path string) func() {
	s.mutex.Lock()
	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[path] = lock
	}
	s.mutex.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Existing returns the document at path if there is one.
func (s *Store) Existing(path string) (Document, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return Document{}, false
	}
	return Document{
		Path:      path,
		ByteSize:  info.Size(),
		Validated: true,
		Existing:  true,
	}, true
}

// IsPDF reports whether a response carries a pdf, judged by its leading
// bytes or else by its content type.
func IsPDF(head []byte, contentType string) bool {
	if bytes.HasPrefix(head, pdfMagic) {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	return mediaType == "application/pdf"
}

// Save validates data and atomically writes it to path.
func (s *Store) Save(path string, data []byte, contentType string) (Document, error) {
	return s.SaveStream(path, bytes.NewReader(data), contentType)
}

// SaveStream copies r into a temporary file next to path and renames it
// into place once the content is known to be a pdf. Invalid content never
// reaches path.
func (s *Store) SaveStream(path string, r io.Reader, contentType string) (Document, error) {
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(len(pdfMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("read document head: %w", err)
	}
	if !IsPDF(head, contentType) {
		return Document{}, fmt.Errorf("%w: content type %q", ErrInvalidDocument, contentType)
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return Document{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return Document{}, err
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, buffered)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size == 0 {
		err = fmt.Errorf("%w: empty body", ErrInvalidDocument)
	}
	if err != nil {
		os.Remove(tmpPath)
		s.tel.ReportWarning(report_store_save, path, err)
		return Document{}, err
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		os.Remove(tmpPath)
		s.tel.ReportBroken(report_store_save, path, err)
		return Document{}, err
	}

	s.tel.ReportDebug("document validated", path, size)
	return Document{
		Path:      path,
		ByteSize:  size,
		Validated: true,
	}, nil
}

// WriteArtifact writes an audit file such as the raw portal response into
// the search directory.
func (s *Store) WriteArtifact(searchDir, name string, data []byte) (string, error) {
	err := os.MkdirAll(searchDir, 0755)
	if err != nil {
		return "", err
	}
	path := filepath.Join(searchDir, name)
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		s.tel.ReportWarning(report_store_artifact, path, err)
		return "", err
	}
	return path, nil
}
