package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/product-scorer/internal/model"
)

func sampleRecords() []model.ScoreRecord {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return []model.ScoreRecord{
		{
			ProductID:         "B0001",
			OverallScore:      91,
			Breakdown:         model.ScoreBreakdown{Demand: 35, Price: 30, Content: 20, Market: 6},
			Tier:              model.TierAPlus,
			Recommendations:   []string{"first", "second"},
			RiskFactors:       []string{},
			Opportunities:     []string{"grow"},
			FeatureConfidence: 1,
			ScoredAt:          at,
		},
		{
			ProductID:    "B0002",
			OverallScore: 42,
			Tier:         model.TierD,
			ScoredAt:     at,
		},
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{"table", "csv", "xlsx"} {
		assert.NoError(t, validateFormat(f))
	}
	err := validateFormat("json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--format must be")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, scoresTable(sampleRecords())))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "product_id"))
	assert.True(t, strings.HasPrefix(lines[1], "----------"))
	assert.Contains(t, lines[2], "B0001")
	assert.Contains(t, lines[2], "A+")
	assert.Contains(t, lines[2], "first; second")
	assert.Contains(t, lines[3], "B0002")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, scoresTable(sampleRecords())))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "product_id", rows[0][0])
	assert.Equal(t, []string{"B0001", "91", "A+", "35", "30", "20", "6", "1.00", "2026-03-10 12:00:00", "first; second", "", "grow"}, rows[1])
	assert.Equal(t, "D", rows[2][2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeXLSX(&buf, scoresTable(sampleRecords())))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Scores", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "product_id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "B0001", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "A+", sheet.Rows[1].Cells[2].String())

	score, err := sheet.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 91, score, 1e-9)
}

func TestWriteOutput_XLSXNeedsFile(t *testing.T) {
	err := writeOutput(scoresTable(sampleRecords()), formatXLSX, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output is required")
}

func TestWriteOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, writeOutput(scoresTable(sampleRecords()), formatCSV, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "product_id,overall_score,tier"))
}

func TestWriteOutput_BadFormat(t *testing.T) {
	assert.Error(t, writeOutput(tabular{}, "pdf", ""))
}

func TestStatsTable(t *testing.T) {
	last := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tbl := statsTable(&model.ScoreStats{
		Count:        3,
		AverageScore: 71.333,
		TierCounts:   map[model.Tier]int{model.TierA: 2, model.TierD: 1},
		LastScoredAt: &last,
	})

	got := make(map[string]string, len(tbl.rows))
	for _, r := range tbl.rows {
		got[r[0]] = r[1]
	}
	assert.Equal(t, "3", got["count"])
	assert.Equal(t, "71.3", got["average_score"])
	assert.Equal(t, "2", got["tier_A"])
	assert.Equal(t, "0", got["tier_A+"])
	assert.Equal(t, "1", got["tier_D"])
	assert.Equal(t, "2026-03-10 12:00:00", got["last_scored_at"])

	empty := statsTable(&model.ScoreStats{TierCounts: map[model.Tier]int{}})
	assert.Equal(t, []string{"last_scored_at", ""}, empty.rows[len(empty.rows)-1])
}

func TestLogTable(t *testing.T) {
	prev, next, change := 60, 72, 12
	tbl := logTable([]model.AnalysisLogEntry{
		{
			ID: "l1", ProductID: "B0001",
			PreviousScore: &prev, NewScore: &next, ScoreChange: &change,
			ProcessingTimeMs: 15, TriggeredBy: "cli",
			CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{ID: "l2", ProductID: "B0002", ErrorMessage: "boom", TriggeredBy: "rescore"},
	})

	require.Len(t, tbl.rows, 2)
	assert.Equal(t, []string{"l1", "B0001", "60", "72", "12", "15", "cli", "", "2026-03-10 12:00:00"}, tbl.rows[0])
	assert.Equal(t, "", tbl.rows[1][2])
	assert.Equal(t, "", tbl.rows[1][3])
	assert.Equal(t, "boom", tbl.rows[1][7])
}
