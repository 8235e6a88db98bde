// Package calendar writes homework deadlines into Google Calendar and
// classifies write failures so the scheduler knows what is worth a retry.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/api/googleapi"
)

// EventInput is what the scheduler asks the sink to persist.
type EventInput struct {
	Subject string
	Task    string
	Start   time.Time
	End     time.Time
	// ExistingID, when set, updates the event instead of inserting a
	// duplicate.
	ExistingID string
}

// Sink is the external calendar collaborator.
type Sink interface {
	CreateOrUpdateEvent(ctx context.Context, in EventInput) (externalID string, err error)
	// DeleteEvent removes an event this sink created earlier. Used to
	// clean up the loser of a concurrent double-write.
	DeleteEvent(ctx context.Context, externalID string) error
}

// FailKind splits sink failures into those worth retrying and those that
// need the user.
type FailKind int

const (
	Transient FailKind = iota // timeout, rate limit, 5xx
	Permanent                 // bad request, revoked auth
)

// SinkError wraps a calendar write failure with its retry class.
type SinkError struct {
	Kind FailKind
	Err  error
}

func (e *SinkError) Error() string {
	if e.Kind == Transient {
		return fmt.Sprintf("calendar: transient: %v", e.Err)
	}
	return fmt.Sprintf("calendar: permanent: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// ErrAuthRequired: no usable Google token; the user has to run /auth.
var ErrAuthRequired = errors.New("calendar not authorized")

// IsTransient reports whether err is a sink failure worth retrying.
func IsTransient(err error) bool {
	var se *SinkError
	return errors.As(err, &se) && se.Kind == Transient
}

// classify maps an API error onto a SinkError. Auth failures come out as
// Permanent and wrap ErrAuthRequired.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuthRequired) {
		return &SinkError{Kind: Permanent, Err: ErrAuthRequired}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &SinkError{Kind: Permanent, Err: fmt.Errorf("%w: %v", ErrAuthRequired, err)}
		case gerr.Code == 429 || gerr.Code >= 500:
			return &SinkError{Kind: Transient, Err: err}
		default:
			return &SinkError{Kind: Permanent, Err: err}
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &SinkError{Kind: Transient, Err: err}
	}
	return &SinkError{Kind: Transient, Err: err}
}
