package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRedemptionLockKey(t *testing.T) {
	require.Equal(t, "referral:lock:redemption:123", BuildRedemptionLockKey("123"))
}
