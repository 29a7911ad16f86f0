package fetch

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// JSONRowsParser handles payloads that are already a list of records, either
// a bare array or wrapped in a {"rows": [...]} envelope.
func JSONRowsParser() Parser {
	return ParserFunc(func(payload []byte) (Rows, error) {
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 {
			return nil, eris.New("empty payload")
		}

		var rows []map[string]any
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &rows); err != nil {
				return nil, eris.Wrap(err, "decode row array")
			}
			return rows, nil
		}

		var envelope struct {
			Rows []map[string]any `json:"rows"`
			Data []map[string]any `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, eris.Wrap(err, "decode row envelope")
		}
		if envelope.Rows != nil {
			return envelope.Rows, nil
		}
		if envelope.Data != nil {
			return envelope.Data, nil
		}
		return nil, eris.New("payload has neither rows nor data")
	})
}

// ResultSetsParser handles the stats-API envelope used by NBA-family
// endpoints: named result sets carrying parallel headers and rowSet arrays.
// setName selects which result set to read; empty means the first one.
func ResultSetsParser(setName string) Parser {
	return ParserFunc(func(payload []byte) (Rows, error) {
		var doc struct {
			ResultSets []struct {
				Name    string   `json:"name"`
				Headers []string `json:"headers"`
				RowSet  [][]any  `json:"rowSet"`
			} `json:"resultSets"`
		}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, eris.Wrap(err, "decode resultSets envelope")
		}
		if len(doc.ResultSets) == 0 {
			return nil, eris.New("payload has no result sets")
		}

		set := doc.ResultSets[0]
		if setName != "" {
			found := false
			for _, rs := range doc.ResultSets {
				if strings.EqualFold(rs.Name, setName) {
					set = rs
					found = true
					break
				}
			}
			if !found {
				return nil, eris.Errorf("result set %q not present", setName)
			}
		}

		rows := make(Rows, 0, len(set.RowSet))
		for _, raw := range set.RowSet {
			if len(raw) != len(set.Headers) {
				return nil, eris.Errorf("row width %d does not match %d headers", len(raw), len(set.Headers))
			}
			row := make(map[string]any, len(set.Headers))
			for i, h := range set.Headers {
				row[h] = raw[i]
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
}

// HTMLTableParser reads the first table matching selector into rows keyed by
// header text. An empty selector matches any table.
func HTMLTableParser(selector string) Parser {
	if selector == "" {
		selector = "table"
	}
	return ParserFunc(func(payload []byte) (Rows, error) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "parse html")
		}

		table := doc.Find(selector).First()
		if table.Length() == 0 {
			return nil, eris.Errorf("no table matches %q", selector)
		}

		var headers []string
		table.Find("thead th").Each(func(_ int, s *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(s.Text()))
		})
		if len(headers) == 0 {
			// Header row may be the first tr when the table has no thead.
			table.Find("tr").First().Find("th, td").Each(func(_ int, s *goquery.Selection) {
				headers = append(headers, strings.TrimSpace(s.Text()))
			})
		}
		if len(headers) == 0 {
			return nil, eris.New("table has no header row")
		}

		var rows Rows
		var badRow error
		body := table.Find("tbody tr")
		if body.Length() == 0 {
			body = table.Find("tr").Slice(1, goquery.ToEnd)
		}
		body.Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() == 0 {
				return
			}
			if cells.Length() != len(headers) {
				badRow = eris.Errorf("row width %d does not match %d headers", cells.Length(), len(headers))
				return
			}
			row := make(map[string]any, len(headers))
			cells.Each(func(i int, td *goquery.Selection) {
				row[headers[i]] = strings.TrimSpace(td.Text())
			})
			rows = append(rows, row)
		})
		if badRow != nil {
			return nil, badRow
		}
		return rows, nil
	})
}

// XLSXParser reads the first sheet of a spreadsheet export into rows keyed by
// the header row. Federation sites that publish box scores as downloads get
// wired through this.
func XLSXParser() Parser {
	return ParserFunc(func(payload []byte) (Rows, error) {
		file, err := xlsx.OpenBinary(payload)
		if err != nil {
			return nil, eris.Wrap(err, "open workbook")
		}
		if len(file.Sheets) == 0 {
			return nil, eris.New("workbook has no sheets")
		}

		sheet := file.Sheets[0]
		if len(sheet.Rows) < 2 {
			return nil, eris.New("sheet has no data rows")
		}

		var headers []string
		for _, cell := range sheet.Rows[0].Cells {
			headers = append(headers, strings.TrimSpace(cell.String()))
		}

		rows := make(Rows, 0, len(sheet.Rows)-1)
		for _, r := range sheet.Rows[1:] {
			if len(r.Cells) == 0 {
				continue
			}
			row := make(map[string]any, len(headers))
			for i, cell := range r.Cells {
				if i >= len(headers) {
					break
				}
				row[headers[i]] = strings.TrimSpace(cell.String())
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
}
