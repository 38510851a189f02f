package referral

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	codesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_codes_issued_total",
		Help: "Referral codes created.",
	})
	redemptionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_redemption_attempts_total",
		Help: "Redemption attempts by result (created, rejected reason, fraud_blocked).",
	}, []string{"result"})
	finalizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_finalizations_total",
		Help: "Finalization attempts by outcome.",
	}, []string{"outcome"})
	rewardsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_rewards_issued_total",
		Help: "Reward rows written by role.",
	}, []string{"role"})
)
