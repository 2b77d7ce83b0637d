package submit

import "fmt"

// Kind classifies why a submission did not produce a job.
type Kind int

const (
	KindAuthRequired Kind = iota + 1
	KindValidation
	KindTransport
	KindServerRejected
	KindMalformedResponse
	KindInFlight
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindValidation:
		return "validation_error"
	case KindTransport:
		return "transport_failure"
	case KindServerRejected:
		return "server_rejected"
	case KindMalformedResponse:
		return "malformed_response"
	case KindInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Failure is the only error Submit returns. Message is ready for display.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches any Failure of the same Kind, so the sentinels below work with errors.Is.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind
}

var (
	ErrAuthRequired      = &Failure{Kind: KindAuthRequired, Message: "Error: sign in required"}
	ErrValidation        = &Failure{Kind: KindValidation, Message: "Error: invalid submission"}
	ErrTransport         = &Failure{Kind: KindTransport, Message: "Error: could not reach the job service"}
	ErrServerRejected    = &Failure{Kind: KindServerRejected, Message: "Error: request rejected"}
	ErrMalformedResponse = &Failure{Kind: KindMalformedResponse, Message: "Error: unexpected response from the job service"}
	ErrInFlight          = &Failure{Kind: KindInFlight, Message: "Error: a submission is already in progress"}
)

func newFailure(kind Kind, err error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: "Error: " + fmt.Sprintf(format, args...), Err: err}
}

// Status banners shown to the user.
const ProcessingBanner = "Processing..."

func CreatedBanner(jobID string) string {
	return "Job Created! ID: " + jobID
}

func FailedBanner(message string) string {
	return "Failed: " + message
}
