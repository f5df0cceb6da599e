// internal/report/report.go
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/valpere/ResilientFetch/internal/fallback"
)

// Format names accepted by Write.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// Write renders a metrics snapshot to path in the requested format. The
// extension does not have to match; format decides.
func Write(snap fallback.Snapshot, format, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	switch format {
	case FormatJSON:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return WriteJSON(snap, f)
	case FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return WriteCSV(snap, f)
	case FormatExcel:
		return WriteExcel(snap, path)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON emits the snapshot as indented JSON.
func WriteJSON(snap fallback.Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// sortedKinds returns the strategy names in stable order for tabular output.
func sortedKinds(snap fallback.Snapshot) []string {
	kinds := make([]string, 0, len(snap.Strategies))
	for kind := range snap.Strategies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// WriteCSV emits one row per strategy kind plus a summary row.
func WriteCSV(snap fallback.Snapshot, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"strategy", "attempts", "successes", "failures"}); err != nil {
		return err
	}
	for _, kind := range sortedKinds(snap) {
		s := snap.Strategies[kind]
		row := []string{
			kind,
			strconv.FormatInt(s.Attempts, 10),
			strconv.FormatInt(s.Successes, 10),
			strconv.FormatInt(s.Failures, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	summary := []string{
		"_summary",
		"rejected_writes=" + strconv.FormatInt(snap.RejectedWrites, 10),
		"persist_failures=" + strconv.FormatInt(snap.PersistFailures, 10),
		"avg_latency=" + snap.AverageLatency.String(),
	}
	if err := cw.Write(summary); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
