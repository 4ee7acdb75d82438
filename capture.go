package sitecapture

import "context"

// Capture renders job with a browser launched from opts and waits for the
// result. Cancelling ctx aborts the capture.
func Capture(ctx context.Context, job Job, opts ...Option) (*Report, error) {
	return CaptureWith(ctx, job, NewLauncher(opts...), opts...)
}

// CaptureWith is like [Capture] but launches the engine with launcher.
func CaptureWith(ctx context.Context, job Job, launcher Launcher, opts ...Option) (*Report, error) {
	o := NewOrchestrator(job, launcher, opts...)
	if err := o.Start(ctx); err != nil {
		return nil, err
	}
	// The capture observes ctx itself, so waiting for the outcome always
	// yields a structured error.
	<-o.Done()
	return o.outcome()
}
