// Package report maintains the evidence spreadsheet and the failure manifest.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"orderproof/internal/logger"
)

const (
	SequenceLabel   = "No"
	OrderLabel      = "OrderSN/ Nomor Pesanan"
	EvidenceLabel   = "Bukti pembeli sudah menerima pesanan\n- Screenshot yang menunjukkan pembeli sudah mengonfirmasi menerima produk non fisik. Screenshot harus dari Chat di Shopee, screenshot dari platform lain (cth Whatsapp) tidak akan diproses\n- Masukkan foto kedalam google drive dan salin ulang link kedalam kolom dibawah ini\n- Pastikan google drive tidak terkunci sehingga dapat diakses oleh Tim Shopee"
	defaultSheet    = "Sheet1"
	headerRowHeight = 80
)

// Entry is one order to add; the sequence number is assigned on append.
type Entry struct {
	OrderID  string
	Evidence string
}

// Row is a data row as stored in the sheet.
type Row struct {
	Sequence int
	OrderID  string
	Evidence string
}

// Accumulator appends rows to the report. It assumes exclusive access to the
// file for the duration of each call.
type Accumulator struct {
	log *logger.Logger
}

func NewAccumulator() *Accumulator {
	return &Accumulator{log: logger.New("Report")}
}

// Append adds entries after the existing rows, continuing the sequence, or
// creates the report with its header when it does not exist yet.
func (a *Accumulator) Append(entries []Entry, path string) (string, error) {
	if len(entries) == 0 {
		return path, nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		if err := a.appendExisting(entries, path); err != nil {
			return "", err
		}
		a.log.LogInfof("Appended %d rows to %s", len(entries), path)
	case errors.Is(err, os.ErrNotExist):
		if err := a.create(entries, path); err != nil {
			return "", err
		}
		a.log.LogInfof("Created %s with %d rows", path, len(entries))
	default:
		return "", fmt.Errorf("stat report: %w", err)
	}
	return path, nil
}

func (a *Accumulator) create(entries []Entry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = defaultSheet
	}
	for col, label := range []string{SequenceLabel, OrderLabel, EvidenceLabel} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "C1", style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for col, width := range map[string]float64{"A": 5, "B": 20, "C": 100} {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	if err := f.SetRowHeight(sheet, 1, headerRowHeight); err != nil {
		return fmt.Errorf("header height: %w", err)
	}

	if err := writeRows(f, sheet, 2, 1, entries); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (a *Accumulator) appendExisting(entries []Entry, path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	rows = trimBlankTail(rows)

	nextRow := len(rows) + 1
	if nextRow < 2 {
		nextRow = 2
	}
	if err := writeRows(f, sheet, nextRow, nextSequence(rows), entries); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, startRow, startSeq int, entries []Entry) error {
	for i, e := range entries {
		row := startRow + i
		values := []interface{}{startSeq + i, e.OrderID, e.Evidence}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	return nil
}

// nextSequence continues from the last data row's number, falling back to
// the data row count when that cell is not numeric.
func nextSequence(rows [][]string) int {
	dataRows := len(rows) - 1
	if dataRows <= 0 {
		return 1
	}
	last := rows[len(rows)-1]
	if len(last) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(last[0])); err == nil && n > 0 {
			return n + 1
		}
	}
	return dataRows + 1
}

func trimBlankTail(rows [][]string) [][]string {
	for len(rows) > 0 && isBlank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadRows returns the data rows of an existing report.
func ReadRows(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, err
	}
	rows = trimBlankTail(rows)
	if len(rows) <= 1 {
		return nil, nil
	}
	out := make([]Row, 0, len(rows)-1)
	for _, r := range rows[1:] {
		var row Row
		if len(r) > 0 {
			row.Sequence, _ = strconv.Atoi(strings.TrimSpace(r[0]))
		}
		if len(r) > 1 {
			row.OrderID = r[1]
		}
		if len(r) > 2 {
			row.Evidence = r[2]
		}
		out = append(out, row)
	}
	return out, nil
}

// ReadIdentifiers returns the identifier column (B, from row 2).
func ReadIdentifiers(path string) ([]string, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.OrderID != "" {
			ids = append(ids, r.OrderID)
		}
	}
	return ids, nil
}
