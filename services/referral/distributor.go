package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrRewardExists = errors.New("referral: reward already recorded for redemption and role")

type Distributor struct {
	store Store
	node  *snowflake.Node
	now   func() time.Time
}

func NewDistributor(store Store, node *snowflake.Node) *Distributor {
	return &Distributor{store: store, node: node, now: time.Now}
}

func (d *Distributor) WithStore(store Store) *Distributor {
	return &Distributor{store: store, node: d.node, now: d.now}
}

// Award appends a reward row. A second award for the same redemption and
// role fails with ErrRewardExists.
func (d *Distributor) Award(ctx context.Context, redemptionID, beneficiaryID string, role Role, amount int64) (*Reward, error) {
	reward := &Reward{
		ID:            d.node.Generate().String(),
		BeneficiaryID: beneficiaryID,
		RedemptionID:  redemptionID,
		Role:          role,
		Amount:        amount,
		AwardedAt:     d.now().UTC(),
	}

	if err := d.store.SaveReward(ctx, reward); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, fmt.Errorf("award %s for %s: %w", role, redemptionID, ErrRewardExists)
		}
		return nil, err
	}
	return reward, nil
}
