package rediskey

import "fmt"

// Referral keys (global convention across services)
const (
	ReferralLockPrefix = "referral:lock"
	RedemptionLockNS   = ReferralLockPrefix + ":redemption"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRedemptionLockKey returns "referral:lock:redemption:{redemptionID}"
func BuildRedemptionLockKey(redemptionID string) string {
	return NamespaceKey(RedemptionLockNS, redemptionID)
}
