// Package ident allocates quiz identifiers.
package ident

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/victornm/quizinho/internal/errors"
)

const (
	// Alphabet leaves out characters that are easy to misread on a printed QR label.
	Alphabet = "abcdefghijkmnpqrtwxyzABCDEFGHJKLMNPQRTUVWXYZ"
	Size     = 5

	MinCustomLength = 5
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	disallowed = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
)

// ExistsFunc reports whether a quiz id is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

type Allocator struct {
	alphabet string
	size     int
}

type Option func(a *Allocator)

func WithAlphabet(alphabet string, size int) Option {
	return func(a *Allocator) {
		if alphabet != "" && size > 0 {
			a.alphabet = alphabet
			a.size = size
		}
	}
}

func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		alphabet: Alphabet,
		size:     Size,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// New returns a fresh random id.
func (a *Allocator) New() (string, error) {
	id, err := gonanoid.Generate(a.alphabet, a.size)
	if err != nil {
		return "", fmt.Errorf("ident: generate id: %w", err)
	}

	return id, nil
}

// Resolve picks the id for a new quiz. An empty custom id yields a fresh id.
// A custom id that is taken gets "_" and a fresh id appended; the suffixed
// id is not checked again.
func (a *Allocator) Resolve(ctx context.Context, custom string, exists ExistsFunc) (string, error) {
	if custom == "" {
		return a.New()
	}

	taken, err := exists(ctx, custom)
	if err != nil {
		return "", fmt.Errorf("ident: check custom id %s: %w", custom, err)
	}
	if !taken {
		return custom, nil
	}

	suffix, err := a.New()
	if err != nil {
		return "", err
	}

	return custom + "_" + suffix, nil
}

// Sanitize turns user input into a url safe slug: whitespace runs become "_"
// and every character outside [a-zA-Z0-9-_] is dropped.
func Sanitize(custom string) string {
	s := whitespace.ReplaceAllString(strings.TrimSpace(custom), "_")
	return disallowed.ReplaceAllString(s, "")
}

// ValidateCustom sanitizes custom and rejects slugs that end up too short.
// An empty input is allowed and means "no custom id".
func ValidateCustom(custom string) (string, error) {
	if strings.TrimSpace(custom) == "" {
		return "", nil
	}

	s := Sanitize(custom)
	if len(s) < MinCustomLength {
		return "", errors.Validation(errors.WithMessagef(
			"custom id must have at least %d url safe characters: got %q", MinCustomLength, s))
	}

	return s, nil
}
