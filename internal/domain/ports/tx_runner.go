package ports

import "context"

// TxRunner runs fn inside a database transaction carried by the context
// passed to fn. A transaction already present in ctx is reused.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrorReporter receives internal errors that must not fail a request.
type ErrorReporter interface {
	// Report records err and returns the event id it was filed under.
	Report(ctx context.Context, err error, fields map[string]any) string
}
