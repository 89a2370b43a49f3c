package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 190.0

// Field is a labelled value printed in a report summary block.
type Field struct {
	Label string
	Value string
}

// Section is a titled table in a report.
type Section struct {
	Title string
	// Widths are relative column weights; when empty every column gets the same width.
	Widths []float64
	Data   Dataset
	// Empty is printed instead of the table when Data has no rows.
	Empty string
}

// Report is a single document made of a summary block followed by sections.
type Report struct {
	Title    string
	Subtitle string
	Summary  []Field
	Sections []Section
}

// PDFExporter renders reports into A4 PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF document for the report.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	for _, section := range report.Sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("pdf section %q requires at least one header", section.Title)
		}
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(report.Title), "", 1, "C", false, 0, "")
	}
	if report.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(report.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, field := range report.Summary {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, tr(field.Label), "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(pageWidth-45, 7, tr(field.Value), "", "", false)
	}

	for _, section := range report.Sections {
		pdf.Ln(4)
		if section.Title != "" {
			pdf.SetFont("Arial", "B", 12)
			pdf.CellFormat(0, 8, tr(section.Title), "", 1, "", false, 0, "")
		}
		if len(section.Data.Rows) == 0 && section.Empty != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 7, tr(section.Empty), "", 1, "", false, 0, "")
			continue
		}

		widths := columnWidths(section)
		pdf.SetFont("Arial", "B", 9)
		for i, header := range section.Data.Headers {
			pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		for _, row := range section.Data.Rows {
			for i, header := range section.Data.Headers {
				value := fitText(pdf, tr(row[header]), widths[i]-2)
				pdf.CellFormat(widths[i], 7, value, "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(section Section) []float64 {
	count := len(section.Data.Headers)
	widths := make([]float64, count)
	if len(section.Widths) != count {
		for i := range widths {
			widths[i] = pageWidth / float64(count)
		}
		return widths
	}
	var total float64
	for _, w := range section.Widths {
		total += w
	}
	for i, w := range section.Widths {
		widths[i] = pageWidth * w / total
	}
	return widths
}

// fitText truncates value with an ellipsis so it fits a single table cell.
func fitText(pdf *gofpdf.Fpdf, value string, width float64) string {
	if pdf.GetStringWidth(value) <= width {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
