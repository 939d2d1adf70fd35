package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyForCoversEveryDocumentedKind(t *testing.T) {
	kinds := []Kind{
		BadRequest, Auth, NotFound, RateLimited, Transport,
		Timeout, ServerError, Malformed, BreakerOpen, Cancelled,
	}
	for _, k := range kinds {
		require.NotPanics(t, func() { PolicyFor(k) }, "kind %s should have a policy", k)
	}
}

func TestPolicyForUnknownPanics(t *testing.T) {
	require.Panics(t, func() { PolicyFor(Unknown) })
}

func TestNotFoundAndAuthAreNotStaleEligible(t *testing.T) {
	require.False(t, PolicyFor(NotFound).StaleEligible)
	require.False(t, PolicyFor(Auth).StaleEligible)
}

func TestTransportTimeoutServerErrorAreRetryableAndStaleEligible(t *testing.T) {
	for _, k := range []Kind{Transport, Timeout, ServerError, Malformed} {
		p := PolicyFor(k)
		require.True(t, p.Retryable, "kind %s should be retryable", k)
		require.True(t, p.StaleEligible, "kind %s should be stale-eligible", k)
	}
}

func TestRateLimitedIsNotRetryableButIsStaleEligible(t *testing.T) {
	p := PolicyFor(RateLimited)
	require.False(t, p.Retryable)
	require.True(t, p.StaleEligible)
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(Transport, "failed to reach upstream", cause)

	require.Equal(t, Transport, KindOf(wrapped))
	require.ErrorIs(t, wrapped, cause)
}

func TestKindOfDefaultsToServerErrorForForeignErrors(t *testing.T) {
	require.Equal(t, ServerError, KindOf(errors.New("some unrelated failure")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ServerError, "upstream failed", cause)
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), "upstream failed")
}

func TestNewErrorHasNoCause(t *testing.T) {
	err := New(BadRequest, "city is required")
	require.Nil(t, err.Unwrap())
	require.Equal(t, "bad_request: city is required", err.Error())
}
