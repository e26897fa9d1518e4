package shared_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/attempt"
	"github.com/demodigi-hub/results-hub/internal/domain/participant"
	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
)

func TestDomainError_FormatAndUnwrap(t *testing.T) {
	base := shared.NewDomainError("attempt", "Parse", shared.ErrMalformedRecord, "bad label")
	assert.Equal(t, "attempt.Parse: bad label", base.Error())
	assert.ErrorIs(t, base, shared.ErrMalformedRecord)

	wrapped := shared.WrapError("attempt", "Parse", shared.ErrMalformedRecord, "bad label", errors.New("boom"))
	assert.Equal(t, "attempt.Parse: bad label: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, shared.ErrMalformedRecord)
}

func TestOutcomeErrorsCarryUnrecognizedOutcomeKind(t *testing.T) {
	_, err := attempt.ParseOutcome("HINT")
	require.Error(t, err)
	assert.ErrorIs(t, err, attempt.ErrUnknownOutcome)
	assert.True(t, shared.IsUnrecognizedOutcome(err))
	assert.False(t, shared.IsMalformedRecord(err))
}

func TestLabelErrorsCarryMalformedRecordKind(t *testing.T) {
	_, err := attempt.ProblemNameFromLabel("short")
	require.Error(t, err)
	assert.ErrorIs(t, err, attempt.ErrMalformedLabel)
	assert.True(t, shared.IsMalformedRecord(err))

	_, _, err = attempt.ActivityName("NoUnderscore").Split()
	require.Error(t, err)
	assert.True(t, shared.IsMalformedRecord(err))
}

func TestGridErrorsAreValidationErrors(t *testing.T) {
	p, err := participant.New("mdo_test")
	require.NoError(t, err)
	p.InitGrids(2, 2)

	err = p.SetCell(3, 0, time.Date(2022, 11, 1, 0, 0, 0, 0, time.UTC), true)
	require.ErrorIs(t, err, participant.ErrCellOutOfRange)
	assert.True(t, shared.IsValidation(err))
}

func TestSessionCountErrorIsValidationError(t *testing.T) {
	catalogue, err := skillmap.NewCatalogue([]skillmap.Competency{
		{Name: "IT-säkerhet", Skills: []string{"Backup"}},
	})
	require.NoError(t, err)

	_, _, err = skillmap.NewResolver(catalogue, 0).MatchProblemName("Backup_Q1")
	require.ErrorIs(t, err, skillmap.ErrSessionsUnknown)
	assert.True(t, shared.IsValidation(err))
}

func TestCatalogueErrorKinds(t *testing.T) {
	_, err := skillmap.NewCatalogue(nil)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
	assert.True(t, shared.IsValidation(err))

	_, err = skillmap.NewCatalogue([]skillmap.Competency{
		{Name: "A", Skills: []string{"Backup"}},
		{Name: "B", Skills: []string{"Backup"}},
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestCanvasErrorsAreExternalServiceErrors(t *testing.T) {
	for _, err := range []error{
		shared.ErrCanvasUnavailable,
		shared.ErrCanvasRateLimited,
		shared.ErrCanvasTimeout,
	} {
		assert.True(t, shared.IsExternalService(err), err.Error())
	}
	assert.False(t, shared.IsExternalService(shared.ErrCanvasInvalidResponse))
}

func TestUnmatchedIdentityPredicate(t *testing.T) {
	err := fmt.Errorf("pseudonym %q: %w", "p-9", shared.ErrUnmatchedIdentity)
	assert.True(t, shared.IsUnmatchedIdentity(err))
	assert.True(t, shared.IsMissingResults(fmt.Errorf("summary: %w", shared.ErrMissingResults)))
}
