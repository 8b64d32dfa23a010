package env

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

type lookupFunc func(key string) (string, bool)

// Source reads credentials from process environment variables. Keys are
// upper-cased with '/' and '-' mapped to '_', so "openai/api_key" reads
// OPENAI_API_KEY.
type Source struct {
	lookup lookupFunc
}

var _ ports.CredentialSource = (*Source)(nil)

func NewSource() *Source {
	return &Source{lookup: os.LookupEnv}
}

func (s *Source) Lookup(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := VarName(key)
	value, ok := s.lookup(name)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", fmt.Errorf("env %s: %w", name, domain.ErrCredentialNotFound)
	}

	return value, nil
}

func VarName(key string) string {
	return strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(strings.TrimSpace(key)))
}
