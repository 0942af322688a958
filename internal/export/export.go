// Package export renders reports as downloadable XLSX and PDF files.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/report"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "summary"
	billsSheet   = "bills"
)

// Renderer turns a report into a file in the requested format.
type Renderer struct {
	settings report.Settings
}

// NewRenderer uses settings for units and the currency symbol.
func NewRenderer(settings report.Settings) *Renderer {
	return &Renderer{settings: settings}
}

// Render dispatches on format.
func (r *Renderer) Render(rep *domain.Report, format domain.ExportFormat) (*domain.ExportFile, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case domain.ExportPDF:
		data, err = r.PDF(rep)
	case domain.ExportXLSX:
		data, err = r.XLSX(rep)
	default:
		return nil, &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return &domain.ExportFile{
		Filename:    Filename(rep.Criteria, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Filename is e.g. "water-report-2025-01.xlsx" for a January 2025 water report.
func Filename(c domain.ReportCriteria, format domain.ExportFormat) string {
	return fmt.Sprintf("%s-report-%04d-%02d.%s", c.BillType, c.Year, c.Month+1, format)
}

func period(c domain.ReportCriteria) string {
	return fmt.Sprintf("%d/%d", c.Month+1, c.Year)
}

func windowOf(rep *domain.Report) []domain.BillRecord {
	if rep.Summary == nil {
		return nil
	}
	return rep.Summary.WindowRecords
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// XLSX renders a summary sheet and a sheet with one row per bill in the window.
func (r *Renderer) XLSX(rep *domain.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(billsSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	unit := r.settings.Unit(rep.Criteria.BillType)
	s := rep.Summary
	if s == nil {
		s = &domain.AggregateSummary{}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Utility Bill Report")
	_ = f.SetCellStyle(summarySheet, "A1", "A1", bold)
	rows := [][2]any{
		{"Bill type", string(rep.Criteria.BillType)},
		{"Period", period(rep.Criteria)},
		{"Bills", s.Count},
		{fmt.Sprintf("Total usage (%s)", unit), s.TotalUsage},
		{fmt.Sprintf("Total cost (%s)", r.settings.CurrencySymbol), s.TotalCost},
		{fmt.Sprintf("Average usage (%s)", unit), optional(s.AverageUsage)},
		{fmt.Sprintf("Average cost (%s)", r.settings.CurrencySymbol), optional(s.AverageCost)},
		{"Goal exceeded", s.GoalExceededCount},
		{"Summary", rep.Narrative},
		{"Summary source", string(rep.NarrativeSource)},
	}
	for i, row := range rows {
		n := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", n), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", n), row[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)

	headers := []string{"Date", fmt.Sprintf("Usage (%s)", unit), "Cost", "Goal"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(billsSheet, cell, h)
	}
	_ = f.SetCellStyle(billsSheet, "A1", "D1", bold)
	for i, b := range windowOf(rep) {
		row := i + 2
		_ = f.SetCellValue(billsSheet, fmt.Sprintf("A%d", row), b.Date.Format(domain.DateLayout))
		_ = f.SetCellValue(billsSheet, fmt.Sprintf("B%d", row), b.Usage)
		_ = f.SetCellValue(billsSheet, fmt.Sprintf("C%d", row), b.Cost)
		if b.HasGoal() {
			_ = f.SetCellValue(billsSheet, fmt.Sprintf("D%d", row), b.Goal())
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders a one-page statement with the totals, the summary text and
// the bills table.
func (r *Renderer) PDF(rep *domain.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	unit := r.settings.Unit(rep.Criteria.BillType)
	currency := r.settings.CurrencySymbol
	s := rep.Summary
	if s == nil {
		s = &domain.AggregateSummary{}
	}

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("%s Bill Report", titleCase(string(rep.Criteria.BillType))))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: three months including %s", period(rep.Criteria)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", rep.GeneratedAt.Format("2006-01-02 15:04 MST")))
	pdf.Ln(8)

	pdf.Cell(0, 6, tr(fmt.Sprintf("Total usage: %.2f %s", s.TotalUsage, unit)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Total cost: %s%.2f", currency, s.TotalCost)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Average usage: %s %s", optional(s.AverageUsage), unit)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Average cost: %s%s", currency, optional(s.AverageCost))))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Bills over goal: %d", s.GoalExceededCount))
	pdf.Ln(8)

	pdf.MultiCell(0, 5, tr(rep.Narrative), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, tr(fmt.Sprintf("Usage (%s)", unit)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, tr(fmt.Sprintf("Cost (%s)", currency)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Goal", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range windowOf(rep) {
		goal := "-"
		if b.HasGoal() {
			goal = fmt.Sprintf("%.2f", b.Goal())
		}
		pdf.CellFormat(40, 6, b.Date.Format(domain.DateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, fmt.Sprintf("%.2f", b.Usage), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, fmt.Sprintf("%.2f", b.Cost), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, goal, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
