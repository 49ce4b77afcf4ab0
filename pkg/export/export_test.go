package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Roster: Section A",
		Headers: []string{"Roll", "Name"},
		Rows: []map[string]string{
			{"Roll": "101", "Name": "Asha"},
			{"Roll": "102", "Name": "Bilal, Jr"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, []string{"Roll,Name", "101,Asha", `102,"Bilal, Jr"`}, lines)
}

func TestRenderRequiresHeaders(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF, FormatXLSX} {
		renderer, err := RendererFor(format)
		require.NoError(t, err)
		_, err = renderer.Render(Dataset{})
		assert.Error(t, err, format)
	}
	_, err := RendererFor("docx")
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXRoundTrip(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	rows, err := ReadRows(bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Roll", "Name"}, rows[0])
	assert.Equal(t, []string{"102", "Bilal, Jr"}, rows[2])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Roster Section A", sheetName("Roster: Section A"))
	assert.Equal(t, defaultSheet, sheetName("[]"))
	assert.Len(t, sheetName(strings.Repeat("a", 40)), 31)
}
