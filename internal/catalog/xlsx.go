package catalog

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Spreadsheet column headers, as authored in the source workbook. Headers are
// matched after whitespace trimming; missing columns yield empty fields.
const (
	colNumber       = "Número"
	colTitle        = "Politicas publicas"
	colLevel        = "nivel"
	colOperation    = "Operacionalização/Aplicação"
	colRights       = "Descrição dos direitos"
	colAccess       = "Acesso"
	colOrganization = "Organização interna (Subprogramas e/ou Eixos)"
	colLink         = "Link"
	colNotes        = "Observações"
)

// LoadXLSX reads the policy catalogue from the first sheet of an XLSX
// workbook. The first row must be the header row.
func LoadXLSX(path string) (*Catalog, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("catalog: workbook has no sheets")
	}
	sheet := f.Sheets[0]

	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return LoadRows(rows)
}

// LoadRows builds a catalogue from raw sheet rows (header row first).
func LoadRows(rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, eris.New("catalog: no rows")
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.TrimSpace(h)] = i
	}
	if _, ok := header[colTitle]; !ok {
		return nil, eris.Errorf("catalog: missing required column %q", colTitle)
	}

	col := func(row []string, name string) string {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := &Catalog{}
	for _, row := range rows[1:] {
		c.policies = append(c.policies, Policy{
			Index:        len(c.policies),
			Number:       col(row, colNumber),
			Title:        col(row, colTitle),
			Level:        col(row, colLevel),
			Operation:    col(row, colOperation),
			Rights:       col(row, colRights),
			Access:       col(row, colAccess),
			Organization: col(row, colOrganization),
			Link:         col(row, colLink),
			Notes:        col(row, colNotes),
		})
	}
	return c, nil
}
