package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/doctree"
)

// Rows per section, so one spreadsheet does not become one huge paragraph.
const csvBatchRows = 20

// CSVParser handles CSV files. The first row names the columns and every
// data row is written as "column: value" pairs.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	if len(records) == 0 {
		return tree, nil
	}
	headers, rows := records[0], records[1:]

	for start := 0; start < len(rows); start += csvBatchRows {
		end := min(start+csvBatchRows, len(rows))
		lines := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			cells := make([]string, len(row))
			for j, cell := range row {
				if j < len(headers) && headers[j] != "" {
					cells[j] = headers[j] + ": " + cell
				} else {
					cells[j] = cell
				}
			}
			lines = append(lines, strings.Join(cells, ", "))
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			// Row numbers are 1-based and count the header row.
			Title: fmt.Sprintf("Rows %d-%d", start+2, end+1),
			Text:  strings.Join(lines, "\n"),
		})
	}
	return tree, nil
}
