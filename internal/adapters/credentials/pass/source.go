package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const DefaultPrefix = "parley"

type runFunc func(ctx context.Context, args ...string) (stdout string, stderr string, err error)

// Source reads credentials from the pass password store under prefix.
type Source struct {
	prefix string
	run    runFunc
}

var _ ports.CredentialSource = (*Source)(nil)

func NewSource(prefix string) *Source {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return &Source{prefix: prefix, run: runPassCommand}
}

func (s *Source) Lookup(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := path.Join(s.prefix, key)
	stdout, stderr, err := s.run(ctx, "show", name)
	if err != nil {
		return "", formatError(name, err, stderr)
	}

	// pass stores the secret on the first line; the rest is free-form metadata.
	first, _, _ := strings.Cut(stdout, "\n")
	first = strings.TrimSuffix(first, "\r")
	if first == "" {
		return "", fmt.Errorf("pass %q is empty: %w", name, domain.ErrCredentialNotFound)
	}

	return first, nil
}

func runPassCommand(ctx context.Context, args ...string) (string, string, error) {
	bin, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func formatError(name string, err error, stderr string) error {
	if strings.Contains(stderr, "is not in the password store") {
		return fmt.Errorf("pass %q: %w", name, domain.ErrCredentialNotFound)
	}
	if stderr == "" {
		return fmt.Errorf("pass show %q: %w", name, err)
	}

	return fmt.Errorf("pass show %q: %w: %s", name, err, stderr)
}
