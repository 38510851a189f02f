package referral

import (
	"context"
	"errors"

	"referral-ledger/pkg/lock"
	"referral-ledger/pkg/task"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	health "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

type Service struct {
	health.UnimplementedHealthServer

	db   *gorm.DB
	node *snowflake.Node

	store     Store
	codes     *CodeGenerator
	validator *Validator
	limiter   *RateLimiter
	ledger    *Ledger
	enqueuer  task.Enqueuer
	analytics AnalyticsSink
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Locker    lock.Locker      `optional:"true"`
	Enqueuer  task.Enqueuer    `optional:"true"`
	Notifier  NotificationSink `optional:"true"`
	Analytics AnalyticsSink    `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	store := NewStore(p.DB)
	validator := NewValidator(store)
	limiter := NewRateLimiter(store)

	ledger := NewLedger(LedgerParams{
		Store:       store,
		Node:        p.Node,
		Locker:      p.Locker,
		Validator:   validator,
		Fraud:       NewFraudDetector(store),
		Limiter:     limiter,
		Distributor: NewDistributor(store, p.Node),
		Notifier:    p.Notifier,
		Analytics:   p.Analytics,
	})

	return &Service{
		db:        p.DB,
		node:      p.Node,
		store:     store,
		codes:     NewCodeGenerator(store),
		validator: validator,
		limiter:   limiter,
		ledger:    ledger,
		enqueuer:  p.Enqueuer,
		analytics: ledger.analytics,
	}
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func (s *Service) GetOrCreateCode(ctx context.Context, ownerID string) (*ReferralCode, error) {
	code, created, err := s.codes.GetOrCreate(ctx, ownerID)
	if err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to get or create referral code", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}

	if created {
		codesIssued.Inc()
		if err := s.analytics.Track(ctx, EventCodeGenerated, map[string]any{"owner_id": ownerID, "code": code.Code}); err != nil {
			zap.L().Warn("failed to track analytics event", zap.String("event", EventCodeGenerated), zap.Error(err))
		}
	}
	return code, nil
}

func (s *Service) ValidateCode(ctx context.Context, code, refereeID string) (ValidationResult, error) {
	return s.validator.ValidateForRedemption(ctx, code, refereeID)
}

func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	return s.ledger.CreateRedemption(ctx, req)
}

func (s *Service) RecordProgress(ctx context.Context, ev ActivityLogged) (*ProgressResult, error) {
	return s.ledger.RecordProgress(ctx, ev)
}

// EnqueueActivity hands the event to the worker. Events without an id get
// one here so task retries stay deduplicated.
func (s *Service) EnqueueActivity(ctx context.Context, ev ActivityLogged) (ActivityLogged, error) {
	if s.enqueuer == nil {
		return ev, errors.New("activity queue not configured")
	}
	if ev.EventID == "" {
		ev.EventID = s.node.Generate().String()
	}

	t, opts, err := NewActivityLoggedTask(ev)
	if err != nil {
		return ev, err
	}
	if _, err := s.enqueuer.Enqueue(ctx, t, opts...); err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to enqueue activity", zap.String("referee_id", ev.RefereeID), zap.Error(err))
		return ev, err
	}
	return ev, nil
}

type ProgressView struct {
	Redemption *Redemption `json:"redemption"`
	Threshold  int         `json:"threshold"`
	Remaining  int         `json:"remaining"`
}

func (s *Service) GetProgress(ctx context.Context, refereeID string) (*ProgressView, error) {
	r, err := s.store.FindRedemptionByReferee(ctx, refereeID)
	if err != nil || r == nil {
		return nil, err
	}

	remaining := CompletionThreshold - r.MealsLogged
	if remaining < 0 || r.Status.Terminal() {
		remaining = 0
	}
	return &ProgressView{Redemption: r, Threshold: CompletionThreshold, Remaining: remaining}, nil
}

type Stats struct {
	Code               *ReferralCode `json:"code,omitempty"`
	TotalReferrals     int64         `json:"total_referrals"`
	TotalEarnedEntries int64         `json:"total_earned_entries"`
	Pending            int           `json:"pending"`
	Completed          int           `json:"completed"`
	ReferrerExcluded   int           `json:"referrer_excluded"`
	EntriesReceived    int64         `json:"entries_received"`
}

func (s *Service) GetStats(ctx context.Context, userID string) (*Stats, error) {
	var (
		code        *ReferralCode
		redemptions []*Redemption
		rewards     []*Reward
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		code, err = s.store.LoadCode(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		redemptions, err = s.store.ListRedemptionsForUser(gctx, userID, RoleReferrer)
		return err
	})
	g.Go(func() (err error) {
		rewards, err = s.store.ListRewardsForUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to load referral stats", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	stats := &Stats{Code: code}
	if code != nil {
		stats.TotalReferrals = code.TotalReferrals
		stats.TotalEarnedEntries = code.TotalEarnedEntries
	}
	for _, r := range redemptions {
		switch {
		case r.Status == RedemptionPending:
			stats.Pending++
		case r.Status == RedemptionCompleted:
			stats.Completed++
		case r.ReferrerExcluded:
			stats.ReferrerExcluded++
		}
	}
	for _, rw := range rewards {
		stats.EntriesReceived += rw.Amount
	}
	return stats, nil
}

func (s *Service) ListRewards(ctx context.Context, userID string) ([]*Reward, error) {
	return s.store.ListRewardsForUser(ctx, userID)
}

func (s *Service) ReferrerEligibility(ctx context.Context, referrerID string) (RateLimitResult, error) {
	return s.limiter.CanAwardReferrer(ctx, referrerID)
}
