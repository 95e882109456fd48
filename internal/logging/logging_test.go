package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSinkGroupsByMetric(t *testing.T) {
	logger, sink := New(Options{})

	ForMetric(logger, "FAIR-F1-01D").Info("identifier follows a known scheme", zap.String("scheme", "doi"))
	ForMetric(logger, "FAIR-F2-01M").Warn("landing page inaccessible")
	logger.Info("harvest started")

	assert.Equal(t, []string{"INFO: identifier follows a known scheme scheme=doi"}, sink.Lines("FAIR-F1-01D"))
	assert.Equal(t, []string{"WARNING: landing page inaccessible"}, sink.Lines("FAIR-F2-01M"))
	assert.Equal(t, []string{"INFO: harvest started"}, sink.Lines(GeneralScope))
	assert.Equal(t, []string{"FAIR-F1-01D", "FAIR-F2-01M", GeneralScope}, sink.Scopes())
}

func TestSinkDebugLevel(t *testing.T) {
	logger, sink := New(Options{})
	ForMetric(logger, "m").Debug("hidden")
	assert.Nil(t, sink.Lines("m"))

	logger, sink = New(Options{Debug: true})
	ForMetric(logger, "m").Debug("shown")
	assert.Equal(t, []string{"DEBUG: shown"}, sink.Lines("m"))
}

func TestMetricFieldOnCall(t *testing.T) {
	logger, sink := New(Options{})
	logger.Error("collector failed", Metric("FAIR-I1-01M"), zap.Int("status", 500))
	assert.Equal(t, []string{"ERROR: collector failed status=500"}, sink.Lines("FAIR-I1-01M"))
}

func TestConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Options{Writer: &buf})
	logger.Info("hello")
	_ = logger.Sync()
	assert.Contains(t, buf.String(), "hello")
}

func TestLinesReturnsCopy(t *testing.T) {
	logger, sink := New(Options{})
	ForMetric(logger, "m").Info("a")
	lines := sink.Lines("m")
	lines[0] = "changed"
	assert.Equal(t, "INFO: a", sink.Lines("m")[0])
}
