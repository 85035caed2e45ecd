package umbra

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError(t *testing.T) {
	t.Run("wraps the cause", func(t *testing.T) {
		err := NewFetchError(100, 200, false, ErrSourceTimeout)
		assert.ErrorIs(t, err, ErrSourceTimeout)
		assert.Contains(t, err.Error(), "100-200")
	})

	t.Run("partial results are called out", func(t *testing.T) {
		err := NewFetchError(0, 50, true, errors.New("boom"))
		assert.Contains(t, err.Error(), "partial")
	})

	t.Run("no partial marker without results", func(t *testing.T) {
		err := NewFetchError(0, 50, false, errors.New("boom"))
		assert.NotContains(t, err.Error(), "partial")
	})
}

func TestSentinelErrors(t *testing.T) {
	// Sentinels must be distinguishable for callers routing on errors.Is.
	sentinels := []error{
		ErrMissingContractAddress,
		ErrMissingEndpoint,
		ErrInvalidCiphertext,
		ErrDecryptMismatch,
		ErrSourceTimeout,
		ErrSourceRange,
	}
	for i, a := range sentinels {
		assert.NotEmpty(t, a.Error())
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
