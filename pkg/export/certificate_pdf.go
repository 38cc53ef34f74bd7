package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument holds everything rendered onto a certificate PDF.
type CertificateDocument struct {
	CertificateID string
	StudentName   string
	CourseName    string
	CourseCode    string
	InstituteName string
	InstituteCode string
	IssueDate     time.Time
	ValidFrom     time.Time
	ValidTo       time.Time
	VerifyBaseURL string
}

// CertificateRenderer produces printable certificate documents.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render lays out a single-page A4 landscape certificate.
func (r *CertificateRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.CertificateID == "" {
		return nil, fmt.Errorf("certificate id required")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, pageWidth-20, pageHeight-20, "D")

	pdf.SetFont("Times", "B", 26)
	pdf.CellFormat(0, 16, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "", 13)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "B", 20)
	pdf.CellFormat(0, 12, doc.StudentName, "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "", 13)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "B", 16)
	course := doc.CourseName
	if doc.CourseCode != "" {
		course = fmt.Sprintf("%s (%s)", doc.CourseName, doc.CourseCode)
	}
	pdf.CellFormat(0, 10, course, "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "", 13)
	institute := doc.InstituteName
	if doc.InstituteCode != "" {
		institute = fmt.Sprintf("%s (accreditation code %s)", doc.InstituteName, doc.InstituteCode)
	}
	pdf.CellFormat(0, 8, "awarded by "+institute, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued on %s", doc.IssueDate.Format("02 January 2006")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Valid from %s to %s",
		doc.ValidFrom.Format("02 January 2006"), doc.ValidTo.Format("02 January 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Certificate ID: %s", doc.CertificateID), "", 1, "C", false, 0, "")
	if doc.VerifyBaseURL != "" {
		pdf.CellFormat(0, 5, fmt.Sprintf("Verify at %s/%s", doc.VerifyBaseURL, doc.CertificateID), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
