package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/models"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
	"github.com/noah-isme/student-risk-api/pkg/export"
)

// ExportFormat is the rendered document type.
type ExportFormat string

const (
	ExportFormatPDF ExportFormat = "pdf"
	ExportFormatCSV ExportFormat = "csv"
)

// ParseExportFormat normalises a query value, defaulting to PDF.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatPDF:
		return ExportFormatPDF, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type interventionTimeline interface {
	ListByRiskRecord(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// ExportService renders a risk record together with its intervention timeline.
type ExportService struct {
	records       riskRecordReader
	interventions interventionTimeline
	csv           csvRenderer
	pdf           pdfRenderer
	logger        *zap.Logger
	now           func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(records riskRecordReader, interventions interventionTimeline, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(0)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		records:       records,
		interventions: interventions,
		csv:           csv,
		pdf:           pdf,
		logger:        logger,
		now:           time.Now,
	}
}

var timelineHeaders = []string{"Data", "Tipo", "Descrição", "Resultado", "Responsável", "Retorno"}

// ExportRiskRecord renders the record identified by id in the requested format.
func (s *ExportService) ExportRiskRecord(ctx context.Context, id string, format ExportFormat) (*ExportFile, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk record")
	}
	items, err := s.interventions.ListByRiskRecord(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interventions")
	}

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(s.csvDataset(record, items))
		contentType = "text/csv; charset=utf-8"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(s.pdfReport(record, items))
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		s.logger.Error("failed to render risk record export", zap.String("risk_record_id", record.ID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportFile{
		Filename:    s.filename(record, format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) pdfReport(record *models.RiskRecord, items []models.RiskIntervention) export.Report {
	factors := "Nenhum fator identificado"
	if len(record.Factors) > 0 {
		factors = strings.Join(record.Factors, "\n")
	}
	return export.Report{
		Title:    "Relatório de Risco do Estudante",
		Subtitle: "Gerado em " + s.now().UTC().Format("02/01/2006 15:04") + " UTC",
		Summary: []export.Field{
			{Label: "Estudante", Value: studentLabel(record)},
			{Label: "Pontuação", Value: strconv.Itoa(record.Score)},
			{Label: "Nível", Value: levelLabel(record.Level)},
			{Label: "Situação", Value: statusLabel(record.Status)},
			{Label: "Avaliado em", Value: record.AssessedAt.UTC().Format("02/01/2006")},
			{Label: "Fatores", Value: factors},
		},
		Sections: []export.Section{{
			Title:  "Intervenções",
			Widths: []float64{2, 2.5, 5, 1.8, 2.7, 2},
			Data:   export.Dataset{Headers: timelineHeaders, Rows: timelineRows(items)},
			Empty:  "Nenhuma intervenção registrada",
		}},
	}
}

func (s *ExportService) csvDataset(record *models.RiskRecord, items []models.RiskIntervention) export.Dataset {
	headers := append([]string{"Estudante", "Pontuação", "Nível", "Situação"}, timelineHeaders...)
	base := map[string]string{
		"Estudante": studentLabel(record),
		"Pontuação": strconv.Itoa(record.Score),
		"Nível":     levelLabel(record.Level),
		"Situação":  statusLabel(record.Status),
	}
	timeline := timelineRows(items)
	if len(timeline) == 0 {
		return export.Dataset{Headers: headers, Rows: []map[string]string{base}}
	}
	rows := make([]map[string]string, 0, len(timeline))
	for _, entry := range timeline {
		row := make(map[string]string, len(headers))
		for k, v := range base {
			row[k] = v
		}
		for k, v := range entry {
			row[k] = v
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func timelineRows(items []models.RiskIntervention) []map[string]string {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		outcome := models.OutcomePending
		if item.Outcome != nil {
			outcome = *item.Outcome
		}
		followUp := ""
		if item.FollowUpDate != nil {
			followUp = item.FollowUpDate.Format("02/01/2006")
		}
		rows = append(rows, map[string]string{
			"Data":        item.PerformedAt.UTC().Format("02/01/2006 15:04"),
			"Tipo":        interventionTypeLabel(item.InterventionType),
			"Descrição":   item.Description,
			"Resultado":   outcomeLabel(outcome),
			"Responsável": item.PerformerDisplayName(),
			"Retorno":     followUp,
		})
	}
	return rows
}

func (s *ExportService) filename(record *models.RiskRecord, format ExportFormat) string {
	return fmt.Sprintf("risco_%s_%s.%s", sanitizeFilename(record.StudentID), s.now().UTC().Format("20060102_150405"), format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func studentLabel(record *models.RiskRecord) string {
	if record.StudentName != nil && *record.StudentName != "" {
		return *record.StudentName
	}
	return record.StudentID
}

func levelLabel(level models.RiskLevel) string {
	switch level {
	case models.RiskLevelCritical:
		return "Crítico"
	case models.RiskLevelHigh:
		return "Alto"
	case models.RiskLevelMedium:
		return "Médio"
	default:
		return "Baixo"
	}
}

func statusLabel(status models.RiskRecordStatus) string {
	switch status {
	case models.RiskStatusMonitoring:
		return "Em acompanhamento"
	case models.RiskStatusResolved:
		return "Resolvido"
	default:
		return "Aberto"
	}
}

func outcomeLabel(outcome models.InterventionOutcome) string {
	switch outcome {
	case models.OutcomePositive:
		return "Positivo"
	case models.OutcomeNeutral:
		return "Neutro"
	case models.OutcomeNegative:
		return "Negativo"
	default:
		return "Pendente"
	}
}

func interventionTypeLabel(t models.InterventionType) string {
	switch t {
	case models.InterventionPhoneCall:
		return "Ligação"
	case models.InterventionMeeting:
		return "Reunião"
	case models.InterventionFamilyContact:
		return "Contato com a família"
	case models.InterventionAcademicSupport:
		return "Apoio pedagógico"
	case models.InterventionPsychologicalSupport:
		return "Apoio psicológico"
	case models.InterventionFinancialSupport:
		return "Apoio financeiro"
	case models.InterventionHomeVisit:
		return "Visita domiciliar"
	default:
		return "Outro"
	}
}
