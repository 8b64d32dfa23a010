package chain

import (
	"context"
	"errors"
	"fmt"

	envsource "github.com/bnema/parley/internal/adapters/credentials/env"
	filesource "github.com/bnema/parley/internal/adapters/credentials/file"
	passsource "github.com/bnema/parley/internal/adapters/credentials/pass"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

// Source asks each backend in order and returns the first hit.
type Source struct {
	sources []ports.CredentialSource
}

var _ ports.CredentialSource = (*Source)(nil)

var errNoSources = errors.New("credential chain has no sources")

func NewSource(sources ...ports.CredentialSource) (*Source, error) {
	if len(sources) == 0 {
		return nil, errNoSources
	}
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("credential source %d is nil", i)
		}
	}

	return &Source{sources: sources}, nil
}

// NewDefault checks the environment first, then pass, then files under dir.
// An empty dir leaves the file backend out.
func NewDefault(dir string) (*Source, error) {
	sources := []ports.CredentialSource{envsource.NewSource(), passsource.NewSource(passsource.DefaultPrefix)}
	if dir != "" {
		sources = append(sources, filesource.NewSource(dir))
	}
	return NewSource(sources...)
}

func (s *Source) Lookup(ctx context.Context, key string) (string, error) {
	var errs []error
	for _, source := range s.sources {
		value, err := source.Lookup(ctx, key)
		if err == nil {
			return value, nil
		}
		if shouldSkipFallback(err) {
			return "", err
		}
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if allNotFound(errs) {
		return "", fmt.Errorf("credential %q: %w", key, err)
	}
	return "", fmt.Errorf("credential %q: every backend failed: %w", key, err)
}

func allNotFound(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, domain.ErrCredentialNotFound) && !errors.Is(err, passsource.ErrUnavailable) {
			return false
		}
	}
	return true
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
