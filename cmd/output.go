package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/product-scorer/internal/model"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatXLSX  = "xlsx"
)

// tabular is a rendered result set shared by every output format.
type tabular struct {
	sheet   string
	header  []string
	rows    [][]string
	numeric map[int]bool
}

func validateFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatXLSX:
		return nil
	default:
		return eris.Errorf("--format must be table, csv or xlsx (got %q)", format)
	}
}

// writeOutput renders t in format to outputPath, or stdout when the path is
// empty. xlsx needs a file.
func writeOutput(t tabular, format, outputPath string) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if format == formatXLSX && outputPath == "" {
		return eris.New("--output is required for xlsx")
	}

	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	return render(w, t, format)
}

func render(w io.Writer, t tabular, format string) error {
	switch format {
	case formatCSV:
		return writeCSV(w, t)
	case formatXLSX:
		return writeXLSX(w, t)
	case formatTable:
		return writeTable(w, t)
	default:
		return validateFormat(format)
	}
}

func writeTable(out io.Writer, t tabular) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(t.header, "\t"))
	seps := make([]string, len(t.header))
	for i, h := range t.header {
		seps[i] = strings.Repeat("-", len(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(seps, "\t"))
	for _, row := range t.rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return eris.Wrap(w.Flush(), "write table")
}

func writeCSV(w io.Writer, t tabular) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return eris.Wrap(err, "write CSV header")
	}
	for _, row := range t.rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush CSV")
}

func writeXLSX(w io.Writer, t tabular) error {
	f := xlsx.NewFile()
	name := t.sheet
	if name == "" {
		name = "Sheet1"
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "add xlsx sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range t.header {
		hdr.AddCell().SetString(h)
	}
	for _, row := range t.rows {
		r := sheet.AddRow()
		for i, v := range row {
			c := r.AddCell()
			if t.numeric[i] {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					c.SetFloat(n)
					continue
				}
			}
			c.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "write xlsx")
}

func scoresTable(recs []model.ScoreRecord) tabular {
	t := tabular{
		sheet: "Scores",
		header: []string{
			"product_id", "overall_score", "tier",
			"demand", "price", "content", "market",
			"confidence", "scored_at", "recommendations", "risk_factors", "opportunities",
		},
		numeric: map[int]bool{1: true, 3: true, 4: true, 5: true, 6: true, 7: true},
	}
	for _, r := range recs {
		t.rows = append(t.rows, []string{
			r.ProductID,
			strconv.Itoa(r.OverallScore),
			string(r.Tier),
			strconv.Itoa(r.Breakdown.Demand),
			strconv.Itoa(r.Breakdown.Price),
			strconv.Itoa(r.Breakdown.Content),
			strconv.Itoa(r.Breakdown.Market),
			strconv.FormatFloat(r.FeatureConfidence, 'f', 2, 64),
			r.ScoredAt.UTC().Format("2006-01-02 15:04:05"),
			strings.Join(r.Recommendations, "; "),
			strings.Join(r.RiskFactors, "; "),
			strings.Join(r.Opportunities, "; "),
		})
	}
	return t
}

func statsTable(s *model.ScoreStats) tabular {
	t := tabular{
		sheet:   "Stats",
		header:  []string{"metric", "value"},
		numeric: map[int]bool{1: true},
	}
	t.rows = append(t.rows,
		[]string{"count", strconv.Itoa(s.Count)},
		[]string{"average_score", strconv.FormatFloat(s.AverageScore, 'f', 1, 64)},
	)
	for _, tier := range model.Tiers {
		t.rows = append(t.rows, []string{"tier_" + string(tier), strconv.Itoa(s.TierCounts[tier])})
	}
	last := ""
	if s.LastScoredAt != nil {
		last = s.LastScoredAt.UTC().Format("2006-01-02 15:04:05")
	}
	t.rows = append(t.rows, []string{"last_scored_at", last})
	return t
}

func logTable(entries []model.AnalysisLogEntry) tabular {
	t := tabular{
		sheet: "Analysis Log",
		header: []string{
			"id", "product_id", "previous_score", "new_score", "score_change",
			"processing_ms", "triggered_by", "error", "created_at",
		},
		numeric: map[int]bool{2: true, 3: true, 4: true, 5: true},
	}
	for _, e := range entries {
		t.rows = append(t.rows, []string{
			e.ID,
			e.ProductID,
			optInt(e.PreviousScore),
			optInt(e.NewScore),
			optInt(e.ScoreChange),
			strconv.FormatInt(e.ProcessingTimeMs, 10),
			e.TriggeredBy,
			e.ErrorMessage,
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return t
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
