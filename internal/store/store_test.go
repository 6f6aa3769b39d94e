package store

import (
	"courtfetch/internal/components/telemetry"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	testCases := []struct {
		caseNumber string
		expected   string
	}{
		{caseNumber: "CRLP/11871/2025", expected: "CRLP_11871_2025.pdf"},
		{caseNumber: " wp(c)/12/2024 ", expected: "WP_C__12_2024.pdf"},
		{caseNumber: `CRP\5\2023`, expected: "CRP_5_2023.pdf"},
		{caseNumber: "MISC 42 (old)", expected: "MISC_42_old_.pdf"},
		{caseNumber: "", expected: "case_unknown.pdf"},
		{caseNumber: "WP/A/123/2025", expected: "WP_A_123_2025.pdf"},
		{caseNumber: "CRLP/A/123/2025", expected: "CRLP_A_123_2025.pdf"},
		{caseNumber: "CRLP/11871/20251", expected: "CRLP_11871_2025.pdf"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, FileName(test.caseNumber), test.caseNumber)
	}
}

func TestFileNameDistinctCases(t *testing.T) {
	s := NewStore("/data", telemetry.NewRecorder())
	first := s.DocumentPath("/data/search", "12-03-2025", "WP/A/123/2025")
	second := s.DocumentPath("/data/search", "12-03-2025", "CRLP/A/123/2025")
	require.NotEqual(t, first, second)
}

func TestPaths(t *testing.T) {
	s := NewStore("/data", telemetry.NewRecorder())
	day := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)

	dir := s.SearchDir("andhra", day, "citation 2024 (AP) 1")
	require.Equal(t, filepath.Join("/data", "andhra", "2025-03-14", "citation_2024_AP_1"), dir)

	require.Equal(t,
		filepath.Join(dir, "12-03-2025", "CRLP_11871_2025.pdf"),
		s.DocumentPath(dir, "12-03-2025", "CRLP/11871/2025"),
	)
	require.Equal(t,
		filepath.Join(dir, "unknown_date", "CRLP_11871_2025.pdf"),
		s.DocumentPath(dir, "", "CRLP/11871/2025"),
	)
}

func TestSaveValidates(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, telemetry.NewRecorder())
	path := filepath.Join(root, "a", "b", "X_1_2024.pdf")

	_, err := s.Save(path, []byte("<html>session expired</html>"), "text/html")
	require.ErrorIs(t, err, ErrInvalidDocument)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	doc, err := s.Save(path, []byte("%PDF-1.4 body"), "application/octet-stream")
	require.NoError(t, err)
	require.True(t, doc.Validated)
	require.False(t, doc.Existing)
	require.EqualValues(t, len("%PDF-1.4 body"), doc.ByteSize)

	existing, ok := s.Existing(path)
	require.True(t, ok)
	require.True(t, existing.Existing)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveStreamContentType(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, telemetry.NewRecorder())
	path := filepath.Join(root, "Y_2_2024.pdf")

	doc, err := s.SaveStream(path, strings.NewReader("binary"), "application/pdf; charset=binary")
	require.NoError(t, err)
	require.True(t, doc.Validated)

	_, err = s.SaveStream(filepath.Join(root, "empty.pdf"), strings.NewReader(""), "application/pdf")
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLock(t *testing.T) {
	s := NewStore(t.TempDir(), telemetry.NewRecorder())

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("same")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 16, counter)
}

func TestWriteArtifact(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, telemetry.NewRecorder())
	dir := filepath.Join(root, "search")

	path, err := s.WriteArtifact(dir, "raw_response.txt", []byte("a~b##c~d"))
	require.NoError(t, err)
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a~b##c~d", string(contents))
}
