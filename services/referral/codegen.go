package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral-ledger/pkg/sequence"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	codeLength        = 8
	maxCodeAttempts   = 10
	fallbackRandomLen = 6
	fallbackStampLen  = 4
	maxInsertAttempts = 3

	codeIssueTimeout = 10 * time.Second
)

// CodeGenerator issues one referral code per owner.
type CodeGenerator struct {
	store  Store
	group  singleflight.Group
	now    func() time.Time
	random func(n int) (string, error)
}

func NewCodeGenerator(store Store) *CodeGenerator {
	return &CodeGenerator{
		store:  store,
		now:    time.Now,
		random: sequence.RandomAlphaNumeric,
	}
}

type codeResult struct {
	code    *ReferralCode
	created bool
}

// GetOrCreate returns the owner's code, creating it on first use. created
// reports whether this call inserted it.
func (g *CodeGenerator) GetOrCreate(ctx context.Context, ownerID string) (*ReferralCode, bool, error) {
	if blankID(ownerID) {
		return nil, false, errors.New("owner id is required")
	}

	// callers share one flight per owner, so the work must not inherit the
	// cancellation of whichever caller started it
	ch := g.group.DoChan(ownerID, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), codeIssueTimeout)
		defer cancel()
		code, created, err := g.getOrCreate(workCtx, ownerID)
		return codeResult{code: code, created: created}, err
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		out := res.Val.(codeResult)
		return out.code, out.created && !res.Shared, nil
	}
}

func (g *CodeGenerator) getOrCreate(ctx context.Context, ownerID string) (*ReferralCode, bool, error) {
	existing, err := g.store.LoadCode(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	zapLog := zap.L().With(zap.String("owner_id", ownerID))
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		value, err := g.generate(ctx)
		if err != nil {
			return nil, false, err
		}

		code := &ReferralCode{Code: value, OwnerID: ownerID, CreatedAt: g.now().UTC()}
		err = g.store.SaveCode(ctx, code)
		if err == nil {
			zapLog.Info("referral code issued", zap.String("code", value))
			return code, true, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, false, err
		}

		// another instance issued this owner's code, or the value collided
		existing, err := g.store.LoadCode(ctx, ownerID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		zapLog.Warn("referral code collided on insert, regenerating", zap.Int("attempt", attempt))
	}

	return nil, false, fmt.Errorf("issue referral code for %s: exhausted %d insert attempts", ownerID, maxInsertAttempts)
}

// generate picks an unused code, falling back to a timestamp-suffixed value
// once the random attempts are exhausted.
func (g *CodeGenerator) generate(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		value, err := g.random(codeLength)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}

		taken, err := g.store.FindCodeByValue(ctx, value)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return value, nil
		}
	}

	prefix, err := g.random(fallbackRandomLen)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return prefix + sequence.TimestampSuffix(g.now(), fallbackStampLen), nil
}
