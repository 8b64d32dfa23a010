package ports

import "context"

// CredentialSource resolves provider credentials such as API keys by name.
// A missing key yields an error wrapping domain.ErrCredentialNotFound.
type CredentialSource interface {
	Lookup(ctx context.Context, key string) (string, error)
}
