package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ClassifiesWrappedErrors(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, KindTransient, KindOf(Transient(base)))
	assert.Equal(t, KindPermanent, KindOf(Permanent(base)))
	assert.Equal(t, KindBudget, KindOf(Budget(base)))
	assert.Equal(t, KindInvariant, KindOf(Invariant(base)))
}

func TestKindOf_UnclassifiedDefaultsToTransient(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(errors.New("unclassified")))
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsRetryable(Transient(base)))
	assert.False(t, IsRetryable(Permanent(base)))
	assert.False(t, IsRetryable(Budget(base)))
	assert.False(t, IsRetryable(Invariant(base)))
	assert.True(t, IsRetryable(base), "unclassified errors default to retryable")
}

func TestClassified_UnwrapsToOriginalError(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Transient(base)

	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, base.Error(), wrapped.Error())
}
