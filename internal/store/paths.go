package store

import (
	"courtfetch/pkg/textutil"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	unknownDate = "unknown_date"
	unknownCase = "case_unknown"
)

var (
	caseNumberRegex = regexp.MustCompile(`^([^/\\]+)[/\\]([^/\\]+)[/\\]([0-9]{4})`)
	nonWordRegex    = regexp.MustCompile(`\W+`)
)

// FileName derives the document file name of a case number, so
// "CRLP/11871/2025" becomes "CRLP_11871_2025.pdf".
func FileName(caseNumber string) string {
	caseNumber = textutil.Clean(caseNumber)
	groups := caseNumberRegex.FindStringSubmatch(caseNumber)
	if len(groups) == 4 {
		caseType := nonWordRegex.ReplaceAllString(strings.ToUpper(textutil.Clean(groups[1])), "_")
		number := nonWordRegex.ReplaceAllString(textutil.Clean(groups[2]), "_")
		return caseType + "_" + number + "_" + groups[3] + ".pdf"
	}
	return textutil.SafeLabel(caseNumber, unknownCase) + ".pdf"
}

// SearchDir is the directory every file of one search is written to:
// <root>/<portal>/<yyyy-mm-dd>/<label>.
func (s *Store) SearchDir(portalID string, day time.Time, label string) string {
	return filepath.Join(
		s.root,
		textutil.SafeLabel(portalID, "portal"),
		day.Format(time.DateOnly),
		textutil.SafeLabel(label, "search"),
	)
}

// DocumentPath is where the document of a record lands inside a search
// directory, it doubles as the de-duplication key of the record.
func (s *Store) DocumentPath(searchDir, orderDate, caseNumber string) string {
	bucket := textutil.SafeLabel(orderDate, unknownDate)
	return filepath.Join(searchDir, bucket, FileName(caseNumber))
}
