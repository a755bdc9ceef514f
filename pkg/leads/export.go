// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ContentTypeXLSX is the media type of an Office Open XML workbook
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const exportSheet = "Leads"

var exportHeader = []string{
	"id", "name", "email", "phone", "workType", "deadline", "budget",
	"description", "source", "status", "createdAt", "updatedAt",
}

// ExportFilename returns the attachment name for an export made at t
func ExportFilename(format string, t time.Time) string {
	return fmt.Sprintf("leads_export_%s.%s", t.UTC().Format("2006-01-02"), format)
}

func exportRow(l Lead) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.Name,
		l.Email,
		deref(l.Phone),
		l.WorkType,
		deref(l.Deadline),
		deref(l.Budget),
		l.Description,
		deref(l.Source),
		string(l.Status),
		l.CreatedAt.UTC().Format(time.RFC3339),
		l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes leads with a header row. Fields are quoted as needed.
func WriteCSV(w io.Writer, leads []Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, l := range leads {
		if err := cw.Write(exportRow(l)); err != nil {
			return fmt.Errorf("failed to write lead %d: %w", l.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes leads as a single-sheet workbook with a bold header row
func WriteXLSX(w io.Writer, leads []Lead) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}
	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}
	for i, l := range leads {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		src := exportRow(l)
		row := make([]interface{}, len(src))
		row[0] = l.ID
		for j := 1; j < len(src); j++ {
			row[j] = src[j]
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write lead %d: %w", l.ID, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
