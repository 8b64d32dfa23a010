package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithProgressReturnsRunError(t *testing.T) {
	boom := errors.New("boom")
	var reported int

	err := runWithProgress(context.Background(), &bytes.Buffer{}, "plaza", 3, func(_ context.Context, report func(tick, conversations int)) error {
		for i := 1; i <= 3; i++ {
			report(i, 1)
			reported++
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, reported)
}

func TestRunProgressModelTracksTicks(t *testing.T) {
	m := newRunProgressModel("plaza", 200, nil)
	assert.Contains(t, m.View(), "plaza  tick 0/200  conversations: 0")

	next, _ := m.Update(tickProgressMsg{tick: 42, conversations: 2})
	assert.Contains(t, next.View(), "tick 42/200  conversations: 2")

	done, _ := next.Update(runFinishedMsg{})
	assert.Empty(t, done.View())
}
