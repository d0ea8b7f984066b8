package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "catalog-service context key " + string(c)
}

const (
	// UserIDKey holds the id of the user owning the resolved session.
	UserIDKey = contextKey("userID")
	// SessionTokenKey holds the opaque token of the resolved session.
	SessionTokenKey = contextKey("sessionToken")
	// RequestIDKey holds the X-Request-ID of the current request.
	RequestIDKey = contextKey("requestID")
	// ComponentKey and OperationKey label log lines.
	ComponentKey = contextKey("component")
	OperationKey = contextKey("operation")
)
