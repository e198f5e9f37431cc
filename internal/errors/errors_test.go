package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/quizinho/internal/errors"
)

func TestError_Kinds(t *testing.T) {
	tests := map[string]struct {
		err        *errors.Error
		wantReason errors.Reason
		wantHTTP   int
	}{
		"validation":        {errors.Validation(), errors.ReasonValidation, http.StatusBadRequest},
		"not found":         {errors.NotFound(), errors.ReasonNotFound, http.StatusNotFound},
		"artifact":          {errors.Artifact(), errors.ReasonArtifact, http.StatusInternalServerError},
		"payment":           {errors.Payment(), errors.ReasonPayment, http.StatusInternalServerError},
		"authenticity":      {errors.Authenticity(), errors.ReasonAuthenticity, http.StatusBadRequest},
		"invalid operation": {errors.InvalidOperation(), errors.ReasonInvalidOperation, http.StatusBadRequest},
		"unauthenticated":   {errors.Unauthenticated(), errors.ReasonUnauthenticated, http.StatusUnauthorized},
		"internal":          {errors.Internal(fmt.Errorf("boom")), errors.ReasonInternal, http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.wantReason, tt.err.Reason)
			assert.Equal(t, tt.wantHTTP, tt.err.HTTPStatusCode())
		})
	}
}

func TestError_IsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create quiz: %w", errors.Payment(errors.WithMessagef("checkout failed")))

	assert.ErrorIs(t, err, errors.Payment())
	assert.NotErrorIs(t, err, errors.Artifact())
	assert.Equal(t, errors.ReasonPayment, errors.ReasonOf(err))
}

func TestConvert(t *testing.T) {
	cause := stderrors.New("redis down")
	e := errors.Convert(cause)

	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, codes.Internal, status.Convert(e).Code())
}
