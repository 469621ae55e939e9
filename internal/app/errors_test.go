package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"annotator/internal/domain"
)

func TestDomainErrorMatchesSentinels(t *testing.T) {
	notFound := domainError(http.StatusNotFound, "NOT_FOUND", "Category not found", nil)
	invalid := domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "bad", nil)
	limited := domainError(http.StatusTooManyRequests, "RATE_LIMITED", "slow down", nil)

	assert.ErrorIs(t, notFound, domain.ErrNotFound)
	assert.NotErrorIs(t, notFound, domain.ErrValidation)
	assert.ErrorIs(t, fmt.Errorf("load: %w", invalid), domain.ErrValidation)
	assert.NotErrorIs(t, limited, domain.ErrNotFound)
}

func TestWrappedDomainErrorKeepsCause(t *testing.T) {
	cause := errors.New("upstream 500")
	err := wrapDomainError(cause, http.StatusBadGateway, "ANALYSIS_FAILED", "Analysis failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ANALYSIS_FAILED: Analysis failed: upstream 500", err.Error())

	status, code, message, details := mapError(fmt.Errorf("analyze: %w", err))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "ANALYSIS_FAILED", code)
	assert.Equal(t, "Analysis failed", message)
	assert.Nil(t, details)
}
