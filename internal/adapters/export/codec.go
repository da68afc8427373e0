// Package export reads and writes course month sheets as JSON, CSV and XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	domain "gymroster/internal/domain/export"
)

// XLSX sheet names.
const (
	RosterSheet = "Roster"
	TotalsSheet = "Totali"
)

// Write encodes sheet in format. CSV carries only the rows.
func Write(w io.Writer, format string, sheet domain.Sheet) error {
	switch format {
	case domain.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sheet)
	case domain.FormatCSV:
		return writeCSV(w, sheet.Records)
	case domain.FormatXLSX:
		return writeXLSX(w, sheet)
	default:
		return domain.ErrUnknownFormat
	}
}

// Read decodes a sheet written in format. Course and month are only
// known for JSON and XLSX input.
func Read(r io.Reader, format string) (domain.Sheet, error) {
	switch format {
	case domain.FormatJSON:
		var sheet domain.Sheet
		if err := json.NewDecoder(r).Decode(&sheet); err != nil {
			return domain.Sheet{}, fmt.Errorf("decode json sheet: %w", err)
		}
		return sheet, nil
	case domain.FormatCSV:
		records, err := readCSV(r)
		if err != nil {
			return domain.Sheet{}, err
		}
		return domain.Sheet{Records: records}, nil
	case domain.FormatXLSX:
		return readXLSX(r)
	default:
		return domain.Sheet{}, domain.ErrUnknownFormat
	}
}

func writeCSV(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(domain.Record{}); err != nil {
		return fmt.Errorf("encode csv header: %w", err)
	}
	if len(records) > 0 {
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode csv rows: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSV(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var records []domain.Record
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode csv rows: %w", err)
	}
	return records, nil
}

func writeXLSX(w io.Writer, sheet domain.Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RosterSheet); err != nil {
		return err
	}
	header := make([]any, len(domain.Columns))
	for i, c := range domain.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(RosterSheet, "A1", &header); err != nil {
		return err
	}
	for i, rec := range sheet.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{rec.FirstName, rec.LastName, rec.Email, rec.Phone, rec.CardNumber, rec.CertificateDate, rec.Paid, rec.PaidAmount, rec.MemberID}
		if err := f.SetSheetRow(RosterSheet, cell, &values); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(TotalsSheet); err != nil {
		return err
	}
	meta := [][]any{
		{"corso", sheet.Course},
		{"mese", sheet.Month},
		{"total_cassa", sheet.Cash.InexactFloat64()},
		{"total_istruttore", sheet.Instructor.InexactFloat64()},
	}
	for i, row := range meta {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(TotalsSheet, cell, &row); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func readXLSX(r io.Reader) (domain.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.Sheet{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	name := RosterSheet
	if idx, _ := f.GetSheetIndex(RosterSheet); idx < 0 {
		name = f.GetSheetName(0)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return domain.Sheet{}, fmt.Errorf("read sheet %s: %w", name, err)
	}
	if len(rows) == 0 {
		return domain.Sheet{}, domain.ErrNoHeader
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var sheet domain.Sheet
	for _, row := range rows[1:] {
		sheet.Records = append(sheet.Records, domain.Record{
			FirstName:       cell(row, "nome"),
			LastName:        cell(row, "cognome"),
			Email:           cell(row, "email"),
			Phone:           cell(row, "cell"),
			CardNumber:      cell(row, "tessera"),
			CertificateDate: cell(row, "dataCert"),
			Paid:            domain.ParseBool(cell(row, "pagato")),
			PaidAmount:      cell(row, "importo"),
			MemberID:        cell(row, "id"),
		})
	}

	if idx, _ := f.GetSheetIndex(TotalsSheet); idx >= 0 {
		meta, err := f.GetRows(TotalsSheet)
		if err != nil {
			return domain.Sheet{}, fmt.Errorf("read sheet %s: %w", TotalsSheet, err)
		}
		for _, row := range meta {
			if len(row) < 2 {
				continue
			}
			switch row[0] {
			case "corso":
				sheet.Course = row[1]
			case "mese":
				sheet.Month = row[1]
			case "total_cassa":
				sheet.Cash, _ = decimal.NewFromString(row[1])
			case "total_istruttore":
				sheet.Instructor, _ = decimal.NewFromString(row[1])
			}
		}
	}
	return sheet, nil
}
