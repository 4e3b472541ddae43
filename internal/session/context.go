package session

import "context"

type ledgerKey struct{}

// NewContext returns a context carrying l. Tools that write to the
// conversation, such as the speak tool, read it back with FromContext.
func NewContext(ctx context.Context, l *Ledger) context.Context {
	return context.WithValue(ctx, ledgerKey{}, l)
}

// FromContext returns the ledger stored in ctx.
func FromContext(ctx context.Context) (*Ledger, bool) {
	l, ok := ctx.Value(ledgerKey{}).(*Ledger)
	return l, ok && l != nil
}
