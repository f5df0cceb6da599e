// internal/report/excel.go
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/ResilientFetch/internal/fallback"
)

const excelSheet = "Fallback Metrics"

// WriteExcel renders the snapshot as a workbook with a per-strategy table and
// a summary block.
func WriteExcel(snap fallback.Snapshot, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(excelSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Strategy", "Attempts", "Successes", "Failures"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(excelSheet, cell, h)
	}

	row := 2
	for _, kind := range sortedKinds(snap) {
		s := snap.Strategies[kind]
		values := []interface{}{kind, s.Attempts, s.Successes, s.Failures}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(excelSheet, cell, v)
		}
		row++
	}

	row++
	summary := [][2]interface{}{
		{"Rejected cache writes", snap.RejectedWrites},
		{"Persist failures", snap.PersistFailures},
		{"Average latency", snap.AverageLatency.String()},
		{"P95 latency", snap.P95Latency.String()},
		{"Latency samples", snap.LatencySamples},
		{"Last fallback", snap.LastFallback.Format("2006-01-02 15:04:05")},
		{"Generated at", snap.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	for _, pair := range summary {
		keyCell, _ := excelize.CoordinatesToCellName(1, row)
		valCell, _ := excelize.CoordinatesToCellName(2, row)
		f.SetCellValue(excelSheet, keyCell, pair[0])
		f.SetCellValue(excelSheet, valCell, pair[1])
		row++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
