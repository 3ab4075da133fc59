package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	return Dataset{
		Title:   "Dashboards",
		Columns: []string{"Student", "Course"},
		Rows:    [][]string{{"Anna de Vries", "Embedded Systems"}, {"Bram, Jr.", "Netwerken"}},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSVQuotesCells(t *testing.T) {
	file, err := Render(FormatCSV, "dashboards", sample())
	require.NoError(t, err)
	assert.Equal(t, "dashboards.csv", file.Name)
	assert.Equal(t, "Student,Course\nAnna de Vries,Embedded Systems\n\"Bram, Jr.\",Netwerken\n", string(file.Data))
}

func TestRenderCSVRejectsRaggedRows(t *testing.T) {
	data := sample()
	data.Rows = append(data.Rows, []string{"only one"})
	_, err := RenderCSV(data)
	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	file, err := Render(FormatPDF, "dashboards", sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
