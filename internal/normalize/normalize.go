// Package normalize turns raw page markup into the canonical text and table extract
// that fingerprinting and diffing operate on.
package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// LineSeparator joins canonical lines.
const LineSeparator = "\n"

// CellDelimiter joins cell values within one table row.
const CellDelimiter = " | "

// noiseSelector matches elements that never carry page content.
const noiseSelector = "script, style, nav, footer, header, noscript, template"

// Result is the canonical form of one page.
type Result struct {
	Text    string
	Extract string
}

// Page normalizes raw markup. It never fails: unparsable input yields empty output.
func Page(raw []byte) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Result{}
	}
	// Tables are read before noise removal so that tables nested in a header still count.
	extract := Tables(doc.Selection)
	doc.Find(noiseSelector).Remove()
	return Result{
		Text:    Text(doc.Selection),
		Extract: extract,
	}
}

// Text returns the visible text under sel as trimmed, non-empty lines.
func Text(sel *goquery.Selection) string {
	var pieces []string
	for _, n := range sel.Nodes {
		collectText(n, &pieces)
	}
	return CanonicalLines(strings.Join(pieces, LineSeparator))
}

// CanonicalLines collapses whitespace runs inside each line, trims it, and drops blank lines.
func CanonicalLines(s string) string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if collapsed := collapseSpaces(line); collapsed != "" {
			lines = append(lines, collapsed)
		}
	}
	return strings.Join(lines, LineSeparator)
}

// Tables serializes every table under sel. Tables without any non-empty row are skipped,
// but the numbering keeps each table's position in the document.
func Tables(sel *goquery.Selection) string {
	var blocks []string
	sel.Find("table").Each(func(i int, table *goquery.Selection) {
		var rows []string
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			nonEmpty := false
			row.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				value := cellText(cell)
				if value != "" {
					nonEmpty = true
				}
				cells = append(cells, value)
			})
			if nonEmpty {
				rows = append(rows, strings.Join(cells, CellDelimiter))
			}
		})
		if len(rows) == 0 {
			return
		}
		blocks = append(blocks, fmt.Sprintf("=== Table %d ===", i+1)+LineSeparator+strings.Join(rows, LineSeparator))
	})
	return strings.Join(blocks, LineSeparator+LineSeparator)
}

func collectText(n *html.Node, out *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*out = append(*out, t)
		}
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func cellText(cell *goquery.Selection) string {
	var pieces []string
	for _, n := range cell.Nodes {
		collectText(n, &pieces)
	}
	return collapseSpaces(strings.Join(pieces, ""))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
