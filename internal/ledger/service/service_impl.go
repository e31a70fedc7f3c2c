package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/internal/partylock"
	"github.com/smallbiznis/billbook/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("billbook/ledger")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Engine        *config.EngineConfigHolder
	Locker        partylock.Locker
	Repo          ledgerdomain.Repository
	PartyRepo     partydomain.Repository
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	engine        *config.EngineConfigHolder
	locker        partylock.Locker
	repo          ledgerdomain.Repository
	partyRepo     partydomain.Repository
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		engine:        p.Engine,
		locker:        p.Locker,
		repo:          p.Repo,
		partyRepo:     p.PartyRepo,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// Post appends one entry to the party ledger and moves the running balance.
// Postings for one party are serialized by the party lock; the balance_version
// compare-and-set guards writers that do not share the lock.
func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if req.PartyID == 0 {
		return nil, ledgerdomain.ErrInvalidParty
	}
	if !req.Direction.Valid() {
		return nil, ledgerdomain.ErrInvalidDirection
	}
	delta, err := ledgerdomain.SignedAmount(req.Kind, req.Amount)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ledger.post", trace.WithAttributes(
		attribute.String("ledger.kind", string(req.Kind)),
		attribute.String("party_id", req.PartyID.String()),
	))
	defer span.End()

	entry, err := s.post(ctx, orgID, req, delta)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "ledger posting failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ledger.sequence", entry.Sequence))
	return entry, nil
}

func (s *Service) post(ctx context.Context, orgID snowflake.ID, req ledgerdomain.PostRequest, delta decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	start := time.Now()
	kind := string(req.Kind)
	defer func() {
		s.ledgerMetrics.ObservePostingDuration(kind, time.Since(start))
	}()

	release, err := s.locker.Lock(ctx, lockKey(orgID, req.PartyID))
	if err != nil {
		s.ledgerMetrics.IncPostingFailure(err)
		return nil, fmt.Errorf("acquire party lock: %w", err)
	}
	defer release()

	maxRetries := s.engine.Get().Ledger.MaxConflictRetries
	for attempt := 0; ; attempt++ {
		var entry *ledgerdomain.LedgerEntry
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			entry, err = s.append(ctx, tx, orgID, req, delta)
			return err
		})

		switch {
		case err == nil:
			s.ledgerMetrics.IncPostingAttempt(kind, obsmetrics.PostingOutcomeApplied)
			s.obsMetrics.RecordLedgerEntry(ctx, kind)
			s.log.Debug("ledger entry posted",
				zap.String("org_id", orgID.String()),
				zap.String("party_id", entry.PartyID.String()),
				zap.String("ledger_entry_id", entry.ID.String()),
				zap.String("kind", kind),
				zap.String("amount", entry.Amount.String()),
				zap.String("closing_amount", entry.ClosingAmount.String()),
				zap.Int64("sequence", entry.Sequence),
				zap.Int("attempt", attempt+1),
			)
			return entry, nil

		case errors.Is(err, ledgerdomain.ErrConcurrencyConflict), db.IsTransient(err):
			s.ledgerMetrics.IncPostingAttempt(kind, obsmetrics.PostingOutcomeConflict)
			exhausted := attempt >= maxRetries
			s.obsMetrics.RecordConcurrencyConflict(ctx, kind, exhausted)
			if exhausted {
				s.log.Warn("ledger posting retries exhausted",
					zap.String("org_id", orgID.String()),
					zap.String("party_id", req.PartyID.String()),
					zap.String("kind", kind),
					zap.Int("attempts", attempt+1),
					zap.Error(err),
				)
				if errors.Is(err, ledgerdomain.ErrConcurrencyConflict) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrConcurrencyConflict, err)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

		case errors.Is(err, ledgerdomain.ErrDuplicatePosting):
			s.ledgerMetrics.IncPostingAttempt(kind, obsmetrics.PostingOutcomeDuplicate)
			return nil, err

		default:
			s.ledgerMetrics.IncPostingAttempt(kind, obsmetrics.PostingOutcomeFailed)
			s.ledgerMetrics.IncPostingFailure(err)
			return nil, err
		}
	}
}

// PostOpeningBalance writes the first entry of a party inserted in the same tx.
// The party is not yet visible to other writers so no lock is taken.
func (s *Service) PostOpeningBalance(ctx context.Context, tx *gorm.DB, party *partydomain.Party, amount decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	if party == nil || party.ID == 0 {
		return nil, ledgerdomain.ErrInvalidParty
	}
	delta, err := ledgerdomain.SignedAmount(ledgerdomain.KindOpeningBalance, amount)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, tx, party, ledgerdomain.PostRequest{
		PartyID:   party.ID,
		Direction: party.Role.Direction(),
		Kind:      ledgerdomain.KindOpeningBalance,
	}, delta)
}

func (s *Service) append(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req ledgerdomain.PostRequest, delta decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	party, err := s.partyRepo.FindByID(ctx, tx, orgID, req.PartyID)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, ledgerdomain.ErrUnknownParty
	}
	if party.Role.Direction() != req.Direction {
		return nil, ledgerdomain.ErrDirectionMismatch
	}
	if !party.IsActive && (req.Kind == ledgerdomain.KindBill || req.Kind == ledgerdomain.KindPayment) {
		return nil, ledgerdomain.ErrPartyInactive
	}

	if req.BillID != nil && req.Kind.OncePerBill() {
		existing, err := s.repo.FindByBillAndKind(ctx, tx, orgID, *req.BillID, req.Kind)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ledgerdomain.ErrDuplicatePosting
		}
	}

	entry, err := s.write(ctx, tx, party, req, delta)
	if err != nil {
		return nil, err
	}
	if req.Attach != nil {
		if err := req.Attach(ctx, tx, entry); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (s *Service) write(ctx context.Context, tx *gorm.DB, party *partydomain.Party, req ledgerdomain.PostRequest, delta decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	closing := party.RunningBalance.Add(delta)
	now := s.clock.Now()

	rows, err := s.partyRepo.CompareAndSetBalance(ctx, tx, party.OrgID, party.ID, party.BalanceVersion, closing, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ledgerdomain.ErrConcurrencyConflict
	}

	narration := strings.TrimSpace(req.Narration)
	if narration == "" {
		narration = defaultNarration(req.Kind, req.Direction)
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		OrgID:         party.OrgID,
		PartyID:       party.ID,
		BillID:        req.BillID,
		Direction:     req.Direction,
		Kind:          req.Kind,
		Narration:     narration,
		Amount:        delta,
		ClosingAmount: closing,
		Sequence:      party.BalanceVersion + 1,
		CreatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrConcurrencyConflict
		}
		return nil, err
	}

	party.RunningBalance = closing
	party.BalanceVersion++
	party.UpdatedAt = now
	return entry, nil
}

func (s *Service) FindByBillAndKind(ctx context.Context, billID string, kind ledgerdomain.Kind) (*ledgerdomain.LedgerEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(billID))
	if err != nil || id == 0 {
		return nil, partydomain.ErrInvalidID
	}
	return s.repo.FindByBillAndKind(ctx, s.db, orgID, id, kind)
}

func lockKey(orgID, partyID snowflake.ID) string {
	return fmt.Sprintf("org:%d:party:%d", orgID, partyID)
}

func defaultNarration(kind ledgerdomain.Kind, direction partydomain.Direction) string {
	side := "Sale"
	if direction == partydomain.DirectionPurchase {
		side = "Purchase"
	}
	switch kind {
	case ledgerdomain.KindOpeningBalance:
		return "Opening balance"
	case ledgerdomain.KindBill:
		return side + " bill"
	case ledgerdomain.KindPayment:
		if direction == partydomain.DirectionPurchase {
			return "Payment made"
		}
		return "Payment received"
	case ledgerdomain.KindReturn:
		return side + " return"
	case ledgerdomain.KindCancellation:
		return side + " cancellation"
	default:
		return string(kind)
	}
}
