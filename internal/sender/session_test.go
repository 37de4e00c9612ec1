package sender

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSession_Blocks(t *testing.T) {
	image := ramp(80)
	s := newSession(1, 0, 32, len(image))

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, 3, s.Blocks)
	assert.Equal(t, int64(80), s.TotalBytes)

	var sizes []int
	for !s.done() {
		b := s.block(image)
		assert.Equal(t, image[s.SentBytes], b[0])
		sizes = append(sizes, len(b))
		s.advance(len(b))
	}
	assert.Equal(t, []int{32, 32, 16}, sizes)
	assert.Equal(t, uint16(3), s.FrameIndex)
	assert.Equal(t, ProgressEvent{Percent: 100, SentBytes: 80, TotalBytes: 80}, s.Progress())
}

func TestBlockCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{80, 32, 3},
		{64, 32, 2},
		{1, 512, 1},
		{65536, 1, 65536},
		{10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, blockCount(tt.total, tt.size))
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	cancelledErr := fmt.Errorf("%w: %w", ErrCancelled, context.Canceled)
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Success},
		{"cancelled", cancelledErr, Cancelled},
		{"wrapped cancelled", fmt.Errorf("flash: %w", cancelledErr), Cancelled},
		{"exhausted", &ExchangeError{Stage: StageInit, Attempts: 4}, Failed},
		{"bare context error", context.Canceled, Failed},
		{"other", errors.New("boom"), Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.err))
		})
	}
	assert.Equal(t, "cancelled", Cancelled.String())
}

func TestExchangeError(t *testing.T) {
	err := &ExchangeError{Stage: StageData, Index: 7, Attempts: 4}
	assert.Equal(t, "data frame 7: no valid response after all attempts (4 attempts)", err.Error())
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	err = &ExchangeError{Stage: StagePing, Attempts: 1}
	assert.Equal(t, "ping: no valid response after all attempts (1 attempts)", err.Error())
}

func TestSinks(t *testing.T) {
	var logs []string
	var events []ProgressEvent
	fs := SinkFuncs{
		Log:      func(m string) { logs = append(logs, m) },
		Progress: func(ev ProgressEvent) { events = append(events, ev) },
	}
	rec := &recorder{}
	m := MultiSink(fs, rec, NopSink{}, SinkFuncs{})

	m.OnLog("hello")
	m.OnProgress(ProgressEvent{Percent: 50, SentBytes: 1, TotalBytes: 2})

	assert.Equal(t, []string{"hello"}, logs)
	assert.Equal(t, []string{"hello"}, rec.logs)
	assert.Len(t, events, 1)
	assert.Len(t, rec.progress, 1)
}
