package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("device lost")

	cases := []struct {
		err  error
		kind error
	}{
		{InitializationError(cause, "open device"), ErrInitialization},
		{AllocationError(nil, "no memory type for %d", 3), ErrAllocation},
		{UnsupportedTransitionError("%d -> %d", 1, 2), ErrUnsupportedTransition},
		{StaleSurfaceError(PresentOutOfDate, "acquire"), ErrStaleSurface},
		{SubmissionError(cause, "submit"), ErrSubmission},
		{PipelineCreationError(cause, "graphics pipeline"), ErrPipelineCreation},
	}

	kinds := []error{ErrInitialization, ErrAllocation, ErrUnsupportedTransition, ErrStaleSurface, ErrSubmission, ErrPipelineCreation}
	for _, c := range cases {
		require.Error(t, c.err)
		for _, kind := range kinds {
			assert.Equal(t, kind == c.kind, errors.Is(c.err, kind), "%v against %v", c.err, kind)
		}
	}

	assert.True(t, errors.Is(SubmissionError(cause, "submit"), cause))
}

func TestErrorsSurviveWrapping(t *testing.T) {
	err := errors.Wrap(AllocationError(nil, "vertex buffer"), "init")
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Contains(t, err.Error(), "init: vertex buffer")
}

func TestFatal(t *testing.T) {
	assert.False(t, Fatal(nil))
	assert.False(t, Fatal(StaleSurfaceError(PresentSuboptimal, "present")))
	assert.True(t, Fatal(SubmissionError(nil, "submit")))
}

func TestPresentStatus(t *testing.T) {
	assert.False(t, PresentOK.Stale())
	assert.True(t, PresentSuboptimal.Stale())
	assert.True(t, PresentOutOfDate.Stale())
	assert.Equal(t, "out of date", PresentOutOfDate.String())
}
