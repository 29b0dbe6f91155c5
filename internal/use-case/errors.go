package use_case

// InputKind is the client-facing category of a rejected request.
type InputKind int

const (
	KindBadRequest InputKind = iota
	KindTooLarge
	KindUnprocessable
)

// InputError rejects a request before any conversion is attempted. It is
// never retried.
type InputError struct {
	Kind    InputKind
	Message string
}

func (e *InputError) Error() string { return e.Message }
