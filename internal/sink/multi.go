package sink

import (
	"context"
	"errors"

	"github.com/dudu/biokiosk/internal/capture"
	"github.com/dudu/biokiosk/internal/logging"
)

// Multi hands every artifact to each consumer in order. All consumers run
// even when one fails; the errors are joined.
type Multi []capture.Consumer

// Consume implements capture.Consumer
func (m Multi) Consume(ctx context.Context, a *capture.Artifact) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Consume(ctx, a); err != nil {
			logging.Error(logging.Fields{"artifact": a.ID().String(), "error": err.Error()}, "[sink.Multi] consumer failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
