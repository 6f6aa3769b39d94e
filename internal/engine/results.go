package engine

import (
	"fmt"
	"html"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderResults renders the records of a search as an html table, document
// links are relative to the search directory.
func RenderResults(report Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Case", "Order date", "Type", "Status", "Document"})
	for _, view := range report.Records {
		link := ""
		if view.Path != "" {
			rel, err := filepath.Rel(report.SearchDir, view.Path)
			if err != nil {
				rel = view.Path
			}
			rel = filepath.ToSlash(rel)
			link = fmt.Sprintf(`<a href="./%s">%s</a>`, html.EscapeString(rel), html.EscapeString(filepath.Base(rel)))
		}
		t.AppendRow(table.Row{
			strconv.Itoa(view.Sequence),
			html.EscapeString(view.CaseNumber),
			html.EscapeString(view.OrderDate),
			html.EscapeString(view.OrderType),
			string(view.Status),
			link,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "written", strconv.Itoa(report.DocumentsWritten)})

	style := table.StyleDefault
	style.HTML.CSSClass = "courtfetch-results"
	style.HTML.EscapeText = false
	t.SetStyle(style)
	return t.RenderHTML()
}

func (e Engine) writeResults(report Report) error {
	page := "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Results</title></head>\n<body>\n" +
		RenderResults(report) +
		"\n</body>\n</html>\n"
	_, err := e.store.WriteArtifact(report.SearchDir, ResultsFile, []byte(page))
	return err
}
