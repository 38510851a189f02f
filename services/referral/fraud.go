package referral

import (
	"context"
	"errors"
)

// FraudThreshold is the number of prior redemptions on one device that marks
// a new attempt as suspicious.
const FraudThreshold = 3

var ErrFraudBlocked = errors.New("referral: redemption blocked by device fingerprint heuristic")

type FraudResult struct {
	Suspicious    bool  `json:"suspicious"`
	PriorOnDevice int64 `json:"prior_on_device"`
}

type FraudDetector struct {
	store     Store
	threshold int64
}

func NewFraudDetector(store Store) *FraudDetector {
	return &FraudDetector{store: store, threshold: FraudThreshold}
}

func (d *FraudDetector) Check(ctx context.Context, deviceFingerprint string) (FraudResult, error) {
	if deviceFingerprint == "" {
		return FraudResult{}, nil
	}

	n, err := d.store.CountRedemptionsByFingerprint(ctx, deviceFingerprint)
	if err != nil {
		return FraudResult{}, err
	}
	return FraudResult{Suspicious: n >= d.threshold, PriorOnDevice: n}, nil
}
