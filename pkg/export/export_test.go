package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterDelimiterAndBOM(t *testing.T) {
	data := Dataset{
		Headers: []string{"Estudante", "Nível"},
		Rows:    []map[string]string{{"Estudante": "Ana; Souza", "Nível": "Alto"}},
	}

	out, err := NewCSVExporter(0).Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("\ufeff")))
	assert.Equal(t, "\ufeffEstudante;Nível\n\"Ana; Souza\";Alto\n", string(out))

	out, err = NewCSVExporter(',').Render(data)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Ana; Souza,Alto")
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(0).Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	report := Report{
		Title:   "Relatório de Risco",
		Summary: []Field{{Label: "Estudante", Value: "João"}},
		Sections: []Section{
			{Title: "Intervenções", Data: Dataset{Headers: []string{"Data", "Descrição"}, Rows: []map[string]string{{"Data": "01/03/2026", "Descrição": "Reunião com a família para alinhar frequência e entregas pendentes do bimestre"}}}},
			{Title: "Vazio", Data: Dataset{Headers: []string{"Data"}}, Empty: "Nada"},
		},
	}

	out, err := NewPDFExporter().Render(report)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Report{Sections: []Section{{Title: "broken"}}})
	assert.Error(t, err)
}

func TestColumnWidths(t *testing.T) {
	section := Section{Widths: []float64{1, 3}, Data: Dataset{Headers: []string{"a", "b"}}}
	assert.InDeltaSlice(t, []float64{47.5, 142.5}, columnWidths(section), 0.001)

	section.Widths = nil
	assert.InDeltaSlice(t, []float64{95, 95}, columnWidths(section), 0.001)
}
