package leads

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func exportFixture() []Lead {
	phone := "+79991234567"
	source := "website"
	return []Lead{
		{
			ID:          7,
			Name:        `Anna "Annie" K.`,
			Email:       "anna@example.com",
			Phone:       &phone,
			WorkType:    "Essay",
			Description: "line one\nline two, with comma",
			Source:      &source,
			Status:      StatusNew,
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime.Add(time.Hour),
		},
		{
			ID:          8,
			Name:        "Boris",
			Email:       "boris@example.com",
			WorkType:    "Thesis",
			Description: "plain",
			Status:      StatusClosed,
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixture()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, []string{
		"7", `Anna "Annie" K.`, "anna@example.com", "+79991234567", "Essay", "", "",
		"line one\nline two, with comma", "website", "new", "2025-05-10T09:00:00Z", "2025-05-10T10:00:00Z",
	}, records[1])
	assert.Equal(t, "", records[2][3], "missing phone is empty")
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,name,email,phone,workType,deadline,budget,description,source,status,createdAt,updatedAt\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, exportFixture()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{exportSheet}, f.GetSheetList())
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "anna@example.com", rows[1][2])
	assert.Equal(t, "Boris", rows[2][1])
}

func TestExportFilename(t *testing.T) {
	ts := time.Date(2025, 1, 2, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "leads_export_2025-01-02.csv", ExportFilename(FormatCSV, ts))
	assert.Equal(t, "leads_export_2025-01-02.xlsx", ExportFilename(FormatXLSX, ts))
}
