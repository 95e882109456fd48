package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/model"
)

func result(id string, earned, total float64, maturity int) model.MetricResult {
	status := model.StatusFail
	if earned > 0 {
		status = model.StatusPass
	}
	return model.MetricResult{
		MetricIdentifier: id,
		TestStatus:       status,
		Score:            model.Score{Earned: earned, Total: total},
		Maturity:         maturity,
	}
}

func TestPrinciple(t *testing.T) {
	tests := []struct {
		id     string
		letter string
		sub    string
		ok     bool
	}{
		{"FsF-F1-01D", "F", "F1", true},
		{"FsF-R1.1-01M", "R", "R1.1", true},
		{"FsF-A1-03D", "A", "A1", true},
		{"FRSM-15-R1.1", "R", "R1.1", true},
		{"FRSM-08-F4", "F", "F4", true},
		{"FAIR-F1-01D", "", "", false},
		{"FsF-X1-01M", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			letter, sub, ok := Principle(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.letter, letter)
			assert.Equal(t, tt.sub, sub)
		})
	}
}

func TestMaturity(t *testing.T) {
	assert.Equal(t, 0, Maturity(0))
	assert.Equal(t, 1, Maturity(0.2))
	assert.Equal(t, 1, Maturity(0.99))
	assert.Equal(t, 1, Maturity(1.4))
	assert.Equal(t, 2, Maturity(1.5))
	assert.Equal(t, 3, Maturity(2.67))
	assert.Equal(t, 5, Maturity(7))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(4, 4))
}

func TestSummarize(t *testing.T) {
	results := []model.MetricResult{
		result("FsF-F1-01D", 1, 1, 3),
		result("FsF-F1-02D", 0.75, 1, 2),
		result("FsF-F2-01M", 0, 2, 0),
		result("FsF-A1-01M", 0.5, 1, 1),
		result("FsF-I1-01M", 1, 2, 2),
		result("FsF-R1-01MD", 1, 3, 1),
		result("FsF-R1.1-01M", 2, 2, 3),
	}
	sum := NewScorer().Summarize(results)

	assert.Equal(t, 12.0, sum.ScoreTotal[Overall])
	assert.Equal(t, 6.25, sum.ScoreEarned[Overall])
	assert.Equal(t, 52.08, sum.ScorePercent[Overall])
	assert.Equal(t, 7, sum.StatusTotal[Overall])
	assert.Equal(t, 6, sum.StatusPassed[Overall])

	assert.Equal(t, 1.75, sum.ScoreEarned["F"])
	assert.Equal(t, 4.0, sum.ScoreTotal["F"])
	assert.Equal(t, 43.75, sum.ScorePercent["F"])
	assert.Equal(t, 2, sum.Maturity["F"], "mean of 3, 2 and 0 rounds to 2")
	assert.Equal(t, 2, sum.StatusTotal["F1"])
	assert.Equal(t, 3, sum.Maturity["F1"], "mean 2.5 rounds away from zero")
	assert.Equal(t, 0, sum.Maturity["F2"])

	assert.Equal(t, 2, sum.Maturity["R"])
	assert.Equal(t, 1, sum.StatusTotal["R1"])
	assert.Equal(t, 1, sum.StatusTotal["R1.1"])

	// (2 + 1 + 2 + 2) / 4
	assert.Equal(t, 2, sum.Maturity[Overall])
}

func TestSummarizeLowMaturityIsLifted(t *testing.T) {
	results := []model.MetricResult{
		result("FsF-F1-01D", 0.5, 1, 1),
		result("FsF-F1-02D", 0, 1, 0),
		result("FsF-F2-01M", 0, 2, 0),
		result("FsF-A1-01M", 0, 1, 0),
	}
	sum := NewScorer().Summarize(results)
	assert.Equal(t, 1, sum.Maturity["F"])
	assert.Equal(t, 0, sum.Maturity["A"])
	assert.Equal(t, 1, sum.Maturity[Overall], "mean of 1 and 0 is lifted to 1")
	_, ok := sum.Maturity["I"]
	assert.False(t, ok, "principles without metrics are absent")
}

func TestSummarizeSoftwareIdentifiers(t *testing.T) {
	results := []model.MetricResult{
		result("FRSM-01-F1", 1, 1, 3),
		result("FRSM-15-R1.1", 1, 2, 2),
		result("custom-metric", 1, 1, 1),
	}
	sum := NewScorer().Summarize(results)
	assert.Equal(t, 4.0, sum.ScoreTotal[Overall])
	assert.Equal(t, 3, sum.StatusTotal[Overall])
	assert.Equal(t, 1, sum.StatusTotal["F"])
	assert.Equal(t, 1, sum.StatusTotal["R1.1"])
	assert.Equal(t, 3, sum.Maturity["F"])
}

func TestSummarizeEmpty(t *testing.T) {
	sum := NewScorer().Summarize(nil)
	require.NotNil(t, sum.ScoreTotal)
	assert.Equal(t, 0.0, sum.ScorePercent[Overall])
	assert.Equal(t, 0, sum.StatusTotal[Overall])
	assert.Equal(t, 0, sum.Maturity[Overall])
}
