package fetch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestJSONRowsParser_BareArray(t *testing.T) {
	rows, err := JSONRowsParser().Parse([]byte(`[{"PTS":31},{"PTS":28}]`))

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(31), rows[0]["PTS"])
}

func TestJSONRowsParser_DataEnvelope(t *testing.T) {
	rows, err := JSONRowsParser().Parse([]byte(`{"data":[{"TEAM_ID":"10"}]}`))

	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestJSONRowsParser_Empty(t *testing.T) {
	_, err := JSONRowsParser().Parse([]byte("  "))
	assert.Error(t, err)
}

func TestResultSetsParser_NamedSet(t *testing.T) {
	payload := []byte(`{"resultSets":[
		{"name":"TeamStats","headers":["TEAM_ID"],"rowSet":[["1610612747"]]},
		{"name":"PlayerStats","headers":["PLAYER_ID","PTS"],"rowSet":[["2544",27],["201939",31]]}
	]}`)

	rows, err := ResultSetsParser("PlayerStats").Parse(payload)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "201939", rows[1]["PLAYER_ID"])
	assert.Equal(t, float64(31), rows[1]["PTS"])
}

func TestResultSetsParser_DefaultsToFirst(t *testing.T) {
	payload := []byte(`{"resultSets":[{"name":"Shots","headers":["X","Y"],"rowSet":[[1,2]]}]}`)

	rows, err := ResultSetsParser("").Parse(payload)

	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestResultSetsParser_WidthMismatch(t *testing.T) {
	payload := []byte(`{"resultSets":[{"name":"Shots","headers":["X","Y"],"rowSet":[[1]]}]}`)

	_, err := ResultSetsParser("").Parse(payload)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "headers")
}

func TestResultSetsParser_MissingSet(t *testing.T) {
	payload := []byte(`{"resultSets":[{"name":"Shots","headers":["X"],"rowSet":[]}]}`)

	_, err := ResultSetsParser("PlayerStats").Parse(payload)

	assert.Error(t, err)
}

func TestHTMLTableParser_HeaderlessTable(t *testing.T) {
	page := `<table>
		<tr><th>TEAM</th><th>W</th></tr>
		<tr><td>Zalgiris</td><td>28</td></tr>
	</table>`

	rows, err := HTMLTableParser("").Parse([]byte(page))

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Zalgiris", rows[0]["TEAM"])
}

func TestHTMLTableParser_NoTable(t *testing.T) {
	_, err := HTMLTableParser("table.stats").Parse([]byte("<div>no tables</div>"))
	assert.Error(t, err)
}

func TestXLSXParser(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Box")
	require.NoError(t, err)

	header := sheet.AddRow()
	header.AddCell().SetString("PLAYER")
	header.AddCell().SetString("PTS")

	row := sheet.AddRow()
	row.AddCell().SetString("Jasikevicius")
	row.AddCell().SetString("19")

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, perr := XLSXParser().Parse(buf.Bytes())

	require.NoError(t, perr)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jasikevicius", rows[0]["PLAYER"])
	assert.Equal(t, "19", rows[0]["PTS"])
}

func TestXLSXParser_NotAWorkbook(t *testing.T) {
	_, err := XLSXParser().Parse([]byte("plain text"))
	assert.Error(t, err)
}
