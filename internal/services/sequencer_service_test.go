package services

import (
	"strings"
	"testing"

	"exambank/internal/config"
	"exambank/internal/observability"

	"github.com/stretchr/testify/assert"
)

func newTestSequencer() *SequencerService {
	cfg := &config.Config{
		Exam: config.ExamConfig{
			IDPrefix:    "EXM",
			IDPadWidth:  3,
			CounterName: "exams",
		},
	}
	return NewSequencerService(nil, cfg, observability.NewLogger(nil))
}

func TestSequencerService_Format_Padding(t *testing.T) {
	sequencer := newTestSequencer()

	assert.Equal(t, "EXM001", sequencer.Format(1))
	assert.Equal(t, "EXM007", sequencer.Format(7))
	assert.Equal(t, "EXM042", sequencer.Format(42))
	assert.Equal(t, "EXM999", sequencer.Format(999))
}

func TestSequencerService_Format_GrowsBeyondPadWidth(t *testing.T) {
	sequencer := newTestSequencer()

	assert.Equal(t, "EXM1000", sequencer.Format(1000))
	assert.Equal(t, "EXM123456", sequencer.Format(123456))
}

func TestSequencerService_FallbackID(t *testing.T) {
	sequencer := newTestSequencer()

	first := sequencer.FallbackID()
	assert.True(t, strings.HasPrefix(first, "EXM"))
	assert.Greater(t, len(first), len("EXM999"), "fallback ids are visibly not counter ids")
}
