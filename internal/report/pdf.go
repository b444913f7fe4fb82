package report

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/Skufu/triage/internal/session"
)

// PDF writes the export as an A4 document using the core Helvetica font, so
// no font files are needed at runtime.
func PDF(w io.Writer, s *session.Session) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Diagnosis session %s", s.ID), true)
	pdf.SetCreator("triage", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i, l := range lines(s) {
		if l.heading {
			size := 12.0
			if i == 0 {
				size = 16
			}
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", size)
			pdf.CellFormat(0, 8, tr(l.text), "B", 1, "L", false, 0, "")
			pdf.Ln(1)
			continue
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(l.text), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
