package report

import (
	"errors"
	"fmt"
	"io"

	"feeportal/internal/domain"
	"feeportal/internal/models"

	"github.com/jung-kurt/gofpdf"
)

var ErrNotPaid = errors.New("receipts are only issued for successful payments")

// WriteReceiptPDF renders a one-page payment receipt for a successful order.
func WriteReceiptPDF(w io.Writer, v models.OrderWithStatus) error {
	if v.Status != domain.StatusSuccess {
		return ErrNotPaid
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Fee payment receipt "+v.CustomOrderID, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Fee Payment Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 11)
	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(50, 8, label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, value, "", 1, "", false, 0, "")
	}
	line("Receipt no.", v.CustomOrderID)
	line("Collect ID", v.OrderID)
	line("School", v.SchoolID)
	line("Student", fmt.Sprintf("%s (%s)", v.StudentInfo.Name, v.StudentInfo.ID))
	line("Email", v.StudentInfo.Email)
	line("Amount paid", fmt.Sprintf("%.2f", v.TransactionAmount))
	line("Order amount", fmt.Sprintf("%.2f", v.OrderAmount))
	line("Payment mode", v.PaymentMode)
	line("Bank reference", v.BankReference)
	line("Paid at", formatTime(v.PaymentTime))
	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 9)
	pdf.Cell(0, 8, "This receipt was generated electronically and needs no signature.")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return nil
}
