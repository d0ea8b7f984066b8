package repository

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// TokenGenerator produces unguessable session tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// CookieCodec signs a session token into the value sent to clients and back.
type CookieCodec interface {
	Seal(token string) (string, error)
	Open(value string) (string, error)
}
