package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/bill/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	paymentservice "github.com/smallbiznis/billbook/internal/payment/service"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Engine     *config.EngineConfigHolder
	Repo       domain.Repository
	PartyRepo  partydomain.Repository
	Ledger     ledgerdomain.Service
	Rates      taxdomain.RateResolver
	Payments   paymentdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	repo       domain.Repository
	partyRepo  partydomain.Repository
	ledger     ledgerdomain.Service
	rates      taxdomain.RateResolver
	payments   paymentdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bill.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		engine:     p.Engine,
		repo:       p.Repo,
		partyRepo:  p.PartyRepo,
		ledger:     p.Ledger,
		rates:      p.Rates,
		payments:   p.Payments,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

type createInput struct {
	direction    partydomain.Direction
	jurisdiction taxdomain.Jurisdiction
	party        *partydomain.Party
	details      *paymentdomain.PaymentDetails
}

// CreateBill validates, computes and persists a bill, then posts it to the
// party ledger. A failed posting removes the persisted bill again.
func (s *Service) CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.CreateBillResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.CreateBillResult{}, domain.ErrInvalidOrganization
	}

	billID := s.genID.Generate()
	log := obslogger.WithContext(ctx, s.log).With(zap.String("bill_id", billID.String()))

	s.transition(log, domain.StateValidating)
	in, err := s.validateCreate(ctx, orgID, req)
	if err != nil {
		s.reject(log, domain.StateValidating, err)
		return domain.CreateBillResult{}, err
	}

	s.transition(log, domain.StateComputing)
	fallback := req.DefaultGSTRate
	if fallback == nil {
		fallback, err = s.rates.ResolveDefaultRate(ctx, orgID)
		if err != nil {
			s.reject(log, domain.StateComputing, err)
			return domain.CreateBillResult{}, err
		}
	}

	inputs := make([]taxdomain.LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		inputs = append(inputs, taxdomain.LineInput{
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			ExplicitRate: line.GSTRate,
			FallbackRate: fallback,
			Intrastate:   in.jurisdiction.Intrastate(),
		})
	}
	computed, err := taxservice.ComputeLines(inputs)
	if err != nil {
		s.reject(log, domain.StateComputing, err)
		return domain.CreateBillResult{}, err
	}
	totals, err := taxservice.Aggregate(computed)
	if err != nil {
		s.reject(log, domain.StateComputing, err)
		return domain.CreateBillResult{}, err
	}
	planned, err := paymentservice.Allocate(totals.GrandTotal, req.AmountTendered, decimal.Zero)
	if err != nil {
		s.reject(log, domain.StateComputing, err)
		return domain.CreateBillResult{}, err
	}
	unpaid, err := paymentservice.Allocate(totals.GrandTotal, decimal.Zero, decimal.Zero)
	if err != nil {
		s.reject(log, domain.StateComputing, err)
		return domain.CreateBillResult{}, err
	}

	now := s.clock.Now()
	number := domain.NormalizeNumber(req.BillNumber)
	if number == "" {
		number = domain.DefaultNumber(in.direction, false, billID)
	}
	bill := domain.Bill{
		ID:            billID,
		OrgID:         orgID,
		BillNumber:    number,
		Direction:     in.direction,
		PartyID:       in.party.ID,
		Jurisdiction:  in.jurisdiction,
		AmountPaid:    unpaid.TotalPaid,
		Remaining:     unpaid.Remaining,
		PaymentStatus: unpaid.Classification,
		Status:        domain.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyTotals(&bill, totals)
	bill.Lines = s.buildLines(orgID, billID, req.Lines, computed, nil, now)

	if err := s.persist(ctx, &bill); err != nil {
		if db.IsDuplicateKeyErr(err) {
			err = domain.ErrDuplicateBillNumber
		}
		s.reject(log, domain.StateComputing, err)
		return domain.CreateBillResult{}, err
	}
	s.transition(log, domain.StatePersisted,
		zap.String("grand_total", bill.GrandTotal.String()),
		zap.String("planned_remaining", planned.Remaining.String()),
	)

	entry, err := s.ledger.Post(ctx, ledgerdomain.PostRequest{
		PartyID:   bill.PartyID,
		Direction: bill.Direction,
		Kind:      ledgerdomain.KindBill,
		Narration: "Bill " + bill.BillNumber,
		Amount:    bill.GrandTotal,
		BillID:    &bill.ID,
	})
	if err != nil {
		return domain.CreateBillResult{}, s.compensate(ctx, log, &bill, err)
	}
	s.transition(log, domain.StateLedgerPosted, zap.String("closing_amount", entry.ClosingAmount.String()))

	s.obsMetrics.RecordBillCreated(ctx, string(bill.Direction), string(bill.Jurisdiction), false)
	s.audit(ctx, auditdomain.ActionBillCreated, bill.ID, map[string]any{
		"bill_number": bill.BillNumber,
		"party_id":    bill.PartyID.String(),
		"direction":   string(bill.Direction),
		"grand_total": money.Format(bill.GrandTotal),
	})

	result := domain.CreateBillResult{
		Bill:          bill,
		LedgerEntry:   *entry,
		Remaining:     bill.Remaining,
		PaymentStatus: bill.PaymentStatus,
		Overpaid:      decimal.Zero,
	}
	if !req.AmountTendered.IsPositive() {
		return result, nil
	}

	paid, err := s.payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		PartyID:   bill.PartyID.String(),
		Direction: string(bill.Direction),
		Amount:    req.AmountTendered,
		Details:   *in.details,
		BillID:    bill.ID.String(),
		Narration: "Payment against " + bill.BillNumber,
	})
	if err != nil {
		log.Warn("payment tendered with bill was not recorded", zap.Error(err))
		return result, fmt.Errorf("%w: bill %s: %w", domain.ErrPaymentNotRecorded, bill.ID, err)
	}

	result.PaymentEntry = &paid.LedgerEntry
	if paid.Allocation != nil {
		result.Bill.AmountPaid = paid.Allocation.TotalPaid
		result.Bill.Remaining = paid.Allocation.Remaining
		result.Bill.PaymentStatus = paid.Allocation.Classification
		result.Remaining = paid.Allocation.Remaining
		result.PaymentStatus = paid.Allocation.Classification
		result.Overpaid = paid.Allocation.Overpaid
	}
	return result, nil
}

func (s *Service) validateCreate(ctx context.Context, orgID snowflake.ID, req domain.CreateBillRequest) (createInput, error) {
	direction, ok := partydomain.ParseDirection(req.Direction)
	if !ok {
		return createInput{}, domain.ErrInvalidDirection
	}
	jurisdiction, ok := taxdomain.ParseJurisdiction(req.Jurisdiction)
	if !ok {
		return createInput{}, domain.ErrInvalidJurisdiction
	}
	partyID, err := snowflake.ParseString(strings.TrimSpace(req.PartyID))
	if err != nil || partyID == 0 {
		return createInput{}, partydomain.ErrInvalidID
	}
	if len(req.Lines) == 0 {
		return createInput{}, taxdomain.ErrEmptyBill
	}
	if req.DefaultGSTRate != nil && req.DefaultGSTRate.IsNegative() {
		return createInput{}, taxdomain.ErrInvalidTaxRate
	}
	if req.AmountTendered.IsNegative() || !money.IsCents(req.AmountTendered) {
		return createInput{}, domain.ErrInvalidTendered
	}

	var details *paymentdomain.PaymentDetails
	if req.AmountTendered.IsPositive() {
		d := paymentdomain.PaymentDetails{Mode: paymentdomain.ModeCash}
		if req.Payment != nil {
			d = req.Payment.Normalize()
		}
		if err := d.Validate(); err != nil {
			return createInput{}, err
		}
		details = &d
	}

	party, err := s.partyRepo.FindByID(ctx, s.db, orgID, partyID)
	if err != nil {
		return createInput{}, err
	}
	if party == nil {
		return createInput{}, partydomain.ErrUnknownParty
	}
	if !party.IsActive {
		return createInput{}, partydomain.ErrPartyInactive
	}
	if party.Role.Direction() != direction {
		return createInput{}, partydomain.ErrDirectionMismatch
	}

	return createInput{
		direction:    direction,
		jurisdiction: jurisdiction,
		party:        party,
		details:      details,
	}, nil
}

// persist writes the bill and its lines in one transaction, retrying transient
// storage failures.
func (s *Service) persist(ctx context.Context, bill *domain.Bill) error {
	cfg := s.engine.Get().Persistence
	return db.RetryTransient(ctx, cfg.MaxAttempts, cfg.Backoff, func(attempt int) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, bill)
		})
	})
}

// compensate removes a bill whose ledger posting failed. When the delete fails
// too the bill is left for reconciliation and both errors are returned.
func (s *Service) compensate(ctx context.Context, log *zap.Logger, bill *domain.Bill, postErr error) error {
	s.transition(log, domain.StateCompensatingDelete, zap.Error(postErr))

	cleanup := context.WithoutCancel(ctx)
	cfg := s.engine.Get().Persistence
	delErr := db.RetryTransient(cleanup, cfg.MaxAttempts, cfg.Backoff, func(attempt int) error {
		return s.db.WithContext(cleanup).Transaction(func(tx *gorm.DB) error {
			return s.repo.Delete(cleanup, tx, bill.OrgID, bill.ID)
		})
	})
	if delErr == nil {
		s.reject(log, domain.StateCompensatingDelete, postErr)
		return fmt.Errorf("%w: %w", domain.ErrLedgerPostFailure, postErr)
	}

	recErr := &domain.ReconciliationError{
		BillID:          bill.ID,
		PostErr:         postErr,
		CompensationErr: delErr,
	}
	log.Error("bill requires reconciliation", zap.Error(recErr))
	s.obsMetrics.RecordReconciliationRequired(cleanup, "create_bill")
	s.audit(cleanup, auditdomain.ActionReconciliationRequired, bill.ID, map[string]any{
		"bill_number":        bill.BillNumber,
		"party_id":           bill.PartyID.String(),
		"grand_total":        money.Format(bill.GrandTotal),
		"post_error":         postErr.Error(),
		"compensation_error": delErr.Error(),
	})
	return recErr
}

func (s *Service) buildLines(orgID, billID snowflake.ID, reqs []domain.LineRequest, computed []taxdomain.ComputedLine, originals []snowflake.ID, now time.Time) []domain.BillLine {
	lines := make([]domain.BillLine, 0, len(computed))
	for i, c := range computed {
		line := domain.BillLine{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			BillID:        billID,
			Position:      i,
			Quantity:      c.Quantity,
			UnitPrice:     c.UnitPrice,
			GSTRate:       c.GSTRate,
			TaxableAmount: c.TaxableAmount,
			CGST:          c.CGST,
			SGST:          c.SGST,
			IGST:          c.IGST,
			LineTotal:     c.LineTotal,
			CreatedAt:     now,
		}
		if i < len(reqs) {
			line.ProductRef = strings.TrimSpace(reqs[i].ProductRef)
			line.Description = strings.TrimSpace(reqs[i].Description)
		}
		if i < len(originals) {
			original := originals[i]
			line.OriginalLineID = &original
		}
		lines = append(lines, line)
	}
	return lines
}

func applyTotals(bill *domain.Bill, totals taxdomain.BillTotals) {
	bill.Subtotal = totals.Subtotal
	bill.CGSTTotal = totals.CGSTTotal
	bill.SGSTTotal = totals.SGSTTotal
	bill.IGSTTotal = totals.IGSTTotal
	bill.GSTTotal = totals.GSTTotal
	bill.GrandTotal = totals.GrandTotal
}

func (s *Service) transition(log *zap.Logger, state domain.State, fields ...zap.Field) {
	log.Info("bill lifecycle", append([]zap.Field{zap.String("state", string(state))}, fields...)...)
}

func (s *Service) reject(log *zap.Logger, from domain.State, err error) {
	log.Info("bill lifecycle",
		zap.String("state", string(domain.StateRejected)),
		zap.String("from", string(from)),
		zap.Error(err),
	)
}

func (s *Service) audit(ctx context.Context, action string, billID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, "bill", billID.String(), metadata); err != nil {
		s.log.Warn("failed to write bill audit log", zap.String("action", action), zap.Error(err))
	}
}

func parseBillID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, ledgerdomain.ErrDuplicatePosting)
}
