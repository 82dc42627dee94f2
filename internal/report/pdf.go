package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/monitor"
)

// maxPDFDiagnostics caps the findings listed in the PDF; the JSON report
// keeps all of them.
const maxPDFDiagnostics = 200

// SavePDF renders the decode report into a PDF document.
func SavePDF(rep DecodeReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Decode Report", false)
	pdf.SetAuthor(emptyFallback(rep.Tool, "decomctl"), false)
	pdf.SetCreator(emptyFallback(rep.Tool, "decomctl"), false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Decode Report")
	if err := addSchemaQR(pdf, rep.Schema.SHA256); err != nil {
		return err
	}
	addInputsSection(pdf, rep)
	addSummarySection(pdf, rep)
	addContainersSection(pdf, rep.Containers)
	addFindingsSection(pdf, rep.Diagnostics)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

// addSchemaQR places the schema digest QR code in the top right corner.
func addSchemaQR(pdf *gofpdf.Fpdf, digest string) error {
	if digest == "" {
		return nil
	}
	png, err := SchemaDigestToQR(digest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("schema-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("schema-qr", pageW-right-30, 12, 30, 30, false, opts, 0, "")
	return nil
}

func addInputsSection(pdf *gofpdf.Fpdf, rep DecodeReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Inputs")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	rows := []struct{ label, value string }{
		{"Schema", emptyFallback(rep.Schema.Path, "-")},
		{"Schema SHA-256", emptyFallback(rep.Schema.SHA256, "-")},
		{"Input", emptyFallback(rep.Input.Path, "-")},
		{"Input size", common.FormatBytes(rep.Input.Size)},
		{"Container", emptyFallback(rep.Container, "-")},
		{"Framing", emptyFallback(rep.Framing, "-")},
	}
	if !rep.GeneratedAt.IsZero() {
		rows = append(rows, struct{ label, value string }{"Generated", rep.GeneratedAt.Format(time.RFC3339)})
	}
	for _, r := range rows {
		pdf.CellFormat(40, 6, r.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, r.value, "", "L", false)
	}
	pdf.Ln(4)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep DecodeReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Packets", value: strconv.FormatInt(rep.Metrics.Packets, 10)},
		{label: "Decoded", value: strconv.FormatInt(rep.Metrics.Decoded, 10)},
		{label: "Failed", value: strconv.FormatInt(rep.Metrics.Failed, 10)},
		{label: "Calibration errors", value: strconv.FormatInt(rep.Metrics.CalibrationErrors, 10)},
		{label: "Findings", value: strconv.Itoa(rep.Summary.Total)},
		{label: "Errors", value: strconv.Itoa(rep.Summary.Errors)},
		{label: "Warnings", value: strconv.Itoa(rep.Summary.Warnings)},
		{label: "Worst alarm", value: emptyFallback(rep.Worst, "normal")},
		{label: "Overall", value: passLabel(rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addContainersSection(pdf *gofpdf.Fpdf, rows []ContainerCount) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Containers")
	pdf.Ln(9)

	headers := []string{"Container", "Packets"}
	widths := []float64{150, 30}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		renderTableRow(pdf, widths, []string{row.Container, strconv.Itoa(row.Packets)}, 5)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []monitor.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, d := range findings {
		if i == maxPDFDiagnostics {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, fmt.Sprintf("%d more findings omitted, see the JSON report.", len(findings)-i), "", "L", false)
			return
		}
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}
		if meta := findingMetadata(d); meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}
		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func severityLabel(d monitor.Diagnostic) string {
	s := strings.TrimSpace(string(d.Severity))
	if s == "" {
		s = "UNKNOWN"
	}
	if d.Level != "" {
		s += " " + d.Level
	}
	return s
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(d monitor.Diagnostic) string {
	parts := make([]string, 0, 6)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	parts = append(parts, fmt.Sprintf("Packet %d", d.PacketIndex))
	if d.Offset != "" {
		parts = append(parts, "Offset "+d.Offset)
	}
	if d.Container != "" {
		parts = append(parts, d.Container)
	}
	if d.Parameter != "" {
		parts = append(parts, d.Parameter)
	}
	if d.Value != "" {
		parts = append(parts, "Value "+d.Value)
	}
	return strings.Join(parts, " | ")
}
