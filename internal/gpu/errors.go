package gpu

import "github.com/cockroachdb/errors"

// Error kinds. Every error produced by the renderer components is marked with
// exactly one of these; test with errors.Is.
var (
	ErrInitialization        = errors.New("initialization error")
	ErrAllocation            = errors.New("allocation error")
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrStaleSurface          = errors.New("stale surface")
	ErrSubmission            = errors.New("submission error")
	ErrPipelineCreation      = errors.New("pipeline creation error")
)

func mark(kind error, cause error, format string, args ...interface{}) error {
	var err error
	if cause == nil {
		err = errors.NewWithDepthf(2, format, args...)
	} else {
		err = errors.WrapWithDepthf(2, cause, format, args...)
	}
	return errors.Mark(err, kind)
}

func InitializationError(cause error, format string, args ...interface{}) error {
	return mark(ErrInitialization, cause, format, args...)
}

func AllocationError(cause error, format string, args ...interface{}) error {
	return mark(ErrAllocation, cause, format, args...)
}

func UnsupportedTransitionError(format string, args ...interface{}) error {
	return mark(ErrUnsupportedTransition, nil, format, args...)
}

func StaleSurfaceError(status PresentStatus, format string, args ...interface{}) error {
	err := mark(ErrStaleSurface, nil, format, args...)
	return errors.WithDetailf(err, "present status: %s", status)
}

func SubmissionError(cause error, format string, args ...interface{}) error {
	return mark(ErrSubmission, cause, format, args...)
}

func PipelineCreationError(cause error, format string, args ...interface{}) error {
	return mark(ErrPipelineCreation, cause, format, args...)
}

// Fatal reports whether err cannot be recovered by rebuilding the swapchain.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, ErrStaleSurface)
}
