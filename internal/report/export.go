// Package report renders transactions as spreadsheets and payment receipts.
package report

import (
	"io"
	"time"

	"feeportal/internal/models"

	"github.com/xuri/excelize/v2"
)

const transactionsSheet = "Transactions"

var exportHeader = []interface{}{
	"Collect ID", "Custom Order ID", "Collect Request ID", "School ID", "Trustee ID",
	"Student Name", "Student ID", "Student Email", "Gateway", "Status",
	"Order Amount", "Transaction Amount", "Payment Mode", "Bank Reference",
	"Payment Time", "Created At",
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteTransactionsXLSX writes rows as a single-sheet workbook to w.
func WriteTransactionsXLSX(w io.Writer, rows []models.OrderWithStatus) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(transactionsSheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, v := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		created := v.CreatedAt
		row := []interface{}{
			v.OrderID, v.CustomOrderID, v.CollectRequestID, v.SchoolID, v.TrusteeID,
			v.StudentInfo.Name, v.StudentInfo.ID, v.StudentInfo.Email, v.Gateway, string(v.Status),
			v.OrderAmount, v.TransactionAmount, v.PaymentMode, v.BankReference,
			formatTime(v.PaymentTime), formatTime(&created),
		}
		if err := f.SetSheetRow(transactionsSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(transactionsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
