package shared

import "context"

// Caller is the identity the gateway attaches to every request. The ledger
// trusts it and only uses it for tenant scoping and attribution.
type Caller struct {
	CompanyID int64
	UserID    int64
}

type callerContextKey struct{}

// ContextWithCaller stores the caller in context.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext extracts the caller from context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	if !ok || caller.CompanyID == 0 {
		return Caller{}, false
	}
	return caller, true
}
