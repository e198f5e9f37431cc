package ident_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizinho/internal/errors"
	"github.com/victornm/quizinho/internal/ident"
)

func TestAllocator_New(t *testing.T) {
	a := ident.NewAllocator()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := a.New()
		require.NoError(t, err)
		require.Len(t, id, ident.Size)

		for _, r := range id {
			assert.True(t, strings.ContainsRune(ident.Alphabet, r), "unexpected rune %q in %s", r, id)
		}
		seen[id] = struct{}{}
	}

	assert.Greater(t, len(seen), 90, "ids should rarely collide")
}

func TestAllocator_Resolve(t *testing.T) {
	type outputs struct {
		id  string
		err error
	}

	tests := map[string]struct {
		custom string
		exists ident.ExistsFunc
		assert func(t *testing.T, out outputs)
	}{
		"should allocate a fresh id without a custom id": {
			exists: func(ctx context.Context, id string) (bool, error) {
				t.Fatal("exists should not be called")
				return false, nil
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Len(t, out.id, ident.Size)
			},
		},

		"should keep a free custom id": {
			custom: "minha-festa",
			exists: func(ctx context.Context, id string) (bool, error) { return false, nil },
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "minha-festa", out.id)
			},
		},

		"should suffix a taken custom id": {
			custom: "taken",
			exists: func(ctx context.Context, id string) (bool, error) { return id == "taken", nil },
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.True(t, strings.HasPrefix(out.id, "taken_"), out.id)
				assert.Len(t, strings.TrimPrefix(out.id, "taken_"), ident.Size)
			},
		},

		"should fail when the existence check fails": {
			custom: "anything",
			exists: func(ctx context.Context, id string) (bool, error) { return false, stderrors.New("redis down") },
			assert: func(t *testing.T, out outputs) {
				assert.ErrorContains(t, out.err, "redis down")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			id, err := ident.NewAllocator().Resolve(context.Background(), tt.custom, tt.exists)
			tt.assert(t, outputs{id: id, err: err})
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"festa da ana":      "festa_da_ana",
		"  olá,  mundo!  ":  "ol_mundo",
		"already-safe_slug": "already-safe_slug",
		"a/b?c#d":           "abcd",
	}

	for in, want := range tests {
		assert.Equal(t, want, ident.Sanitize(in), in)
	}
}

func TestValidateCustom(t *testing.T) {
	got, err := ident.ValidateCustom("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ident.ValidateCustom("my quiz")
	require.NoError(t, err)
	assert.Equal(t, "my_quiz", got)

	_, err = ident.ValidateCustom("!!ab!!")
	assert.ErrorIs(t, err, errors.Validation())
}
