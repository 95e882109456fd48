// Package score aggregates metric results into FAIR principle summaries.
package score

import (
	"math"
	"regexp"
	"sort"

	"github.com/ppiankov/fairmeter/internal/model"
)

// Overall is the summary key of the whole result set
const Overall = "FAIR"

// Principles are the top level FAIR letters, in report order
var Principles = []string{"F", "A", "I", "R"}

var (
	fsfRe  = regexp.MustCompile(`^FsF-(([FAIR])[0-9](\.[0-9])?)`)
	frsmRe = regexp.MustCompile(`^FRSM-[0-9]+-(([FAIR])[0-9](\.[0-9])?)`)
)

// Scorer summarizes metric results
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

type group struct {
	earned, total float64
	passed, count int
	maturity      []int
}

// Principle returns the principle letter and sub-principle of a metric identifier
func Principle(metricID string) (letter, sub string, ok bool) {
	for _, re := range []*regexp.Regexp{fsfRe, frsmRe} {
		if m := re.FindStringSubmatch(metricID); m != nil {
			return m[2], m[1], true
		}
	}
	return "", "", false
}

// Summarize groups results by principle letter, by sub-principle and overall.
// Results whose identifier carries no principle only count towards the overall values.
func (s *Scorer) Summarize(results []model.MetricResult) model.Summary {
	groups := map[string]*group{Overall: {}}
	add := func(key string, r model.MetricResult) {
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.earned += r.Score.Earned
		g.total += r.Score.Total
		g.count++
		if r.Passed() {
			g.passed++
		}
		g.maturity = append(g.maturity, r.Maturity)
	}

	for _, r := range results {
		add(Overall, r)
		letter, sub, ok := Principle(r.MetricIdentifier)
		if !ok {
			continue
		}
		add(letter, r)
		add(sub, r)
	}

	sum := model.Summary{
		ScoreEarned:  make(map[string]float64, len(groups)),
		ScoreTotal:   make(map[string]float64, len(groups)),
		ScorePercent: make(map[string]float64, len(groups)),
		StatusTotal:  make(map[string]int, len(groups)),
		StatusPassed: make(map[string]int, len(groups)),
		Maturity:     make(map[string]int, len(groups)),
	}
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		sum.ScoreEarned[key] = round2(g.earned)
		sum.ScoreTotal[key] = round2(g.total)
		sum.ScorePercent[key] = Percent(g.earned, g.total)
		sum.StatusTotal[key] = g.count
		sum.StatusPassed[key] = g.passed
		if key != Overall {
			sum.Maturity[key] = Maturity(mean(g.maturity))
		}
	}

	// overall maturity is the mean over the principle letters present
	var letters []int
	for _, p := range Principles {
		if m, ok := sum.Maturity[p]; ok {
			letters = append(letters, m)
		}
	}
	sum.Maturity[Overall] = Maturity(mean(letters))
	return sum
}

// Percent returns earned/total as a percentage rounded to two decimals
func Percent(earned, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(earned / total * 100)
}

// Maturity rounds a mean maturity, lifting any non-zero mean below one to one
func Maturity(mean float64) int {
	if mean > 0 && mean < 1 {
		return 1
	}
	m := int(math.Round(mean))
	if m > 5 {
		return 5
	}
	if m < 0 {
		return 0
	}
	return m
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += v
	}
	return float64(total) / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys(m map[string]*group) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
