package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/audit/masking"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/smallbiznis/billbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Poster     ledgerdomain.Poster
	Repo       paymentdomain.Repository
	BillRepo   billdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	poster     ledgerdomain.Poster
	repo       paymentdomain.Repository
	billRepo   billdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		poster:     p.Poster,
		repo:       p.Repo,
		billRepo:   p.BillRepo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// RecordPayment posts a payment entry for the party. When a bill is named the
// bill's paid amount and the payment record are written in the posting
// transaction, so the three move together.
func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidOrganization
	}

	partyID, err := snowflake.ParseString(strings.TrimSpace(req.PartyID))
	if err != nil || partyID == 0 {
		return paymentdomain.RecordPaymentResult{}, partydomain.ErrInvalidID
	}
	direction, ok := partydomain.ParseDirection(req.Direction)
	if !ok {
		return paymentdomain.RecordPaymentResult{}, billdomain.ErrInvalidDirection
	}
	if !req.Amount.IsPositive() || !money.IsCents(req.Amount) {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidAmount
	}
	details := req.Details.Normalize()
	if err := details.Validate(); err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	rawDetails, err := json.Marshal(details)
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	var billID *snowflake.ID
	if raw := strings.TrimSpace(req.BillID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return paymentdomain.RecordPaymentResult{}, billdomain.ErrInvalidID
		}
		if _, err := s.loadPayableBill(ctx, s.db, orgID, id, partyID); err != nil {
			return paymentdomain.RecordPaymentResult{}, err
		}
		billID = &id
	}

	var (
		payment    paymentdomain.Payment
		allocation *paymentdomain.Allocation
	)
	entry, err := s.poster.Post(ctx, ledgerdomain.PostRequest{
		PartyID:   partyID,
		Direction: direction,
		Kind:      ledgerdomain.KindPayment,
		Narration: req.Narration,
		Amount:    req.Amount,
		BillID:    billID,
		Attach: func(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.LedgerEntry) error {
			allocation = nil
			if billID != nil {
				applied, err := s.applyToBill(ctx, tx, orgID, *billID, partyID, req.Amount)
				if err != nil {
					return err
				}
				allocation = &applied
			}

			payment = paymentdomain.Payment{
				ID:            s.genID.Generate(),
				OrgID:         orgID,
				PartyID:       partyID,
				BillID:        billID,
				Direction:     direction,
				Amount:        req.Amount,
				Mode:          details.Mode,
				Details:       datatypes.JSON(rawDetails),
				LedgerEntryID: entry.ID,
				CreatedAt:     entry.CreatedAt,
			}
			return s.repo.Insert(ctx, tx, &payment)
		},
	})
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	status := ""
	if allocation != nil {
		status = string(allocation.Classification)
	}
	s.obsMetrics.RecordPayment(ctx, string(details.Mode), status)
	s.log.Info("payment recorded",
		zap.String("org_id", orgID.String()),
		zap.String("party_id", partyID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("mode", string(details.Mode)),
		zap.String("amount", req.Amount.String()),
		zap.String("closing_amount", entry.ClosingAmount.String()),
	)
	s.audit(ctx, payment, rawDetails)

	return paymentdomain.RecordPaymentResult{
		Payment:           payment,
		LedgerEntry:       *entry,
		NewRunningBalance: entry.ClosingAmount,
		Allocation:        allocation,
	}, nil
}

func (s *Service) ListByBill(ctx context.Context, billID string) ([]paymentdomain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(billID))
	if err != nil || id == 0 {
		return nil, billdomain.ErrInvalidID
	}
	items, err := s.repo.ListByBill(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []paymentdomain.Payment{}
	}
	return items, nil
}

func (s *Service) applyToBill(ctx context.Context, tx *gorm.DB, orgID, billID, partyID snowflake.ID, amount decimal.Decimal) (paymentdomain.Allocation, error) {
	bill, err := s.loadPayableBill(ctx, tx, orgID, billID, partyID)
	if err != nil {
		return paymentdomain.Allocation{}, err
	}

	allocation, err := Allocate(bill.GrandTotal, amount, bill.AmountPaid)
	if err != nil {
		return paymentdomain.Allocation{}, err
	}

	rows, err := s.billRepo.ApplyPayment(ctx, tx, orgID, bill.ID, bill.AmountPaid,
		allocation.TotalPaid, allocation.Remaining, allocation.Classification, s.clock.Now())
	if err != nil {
		return paymentdomain.Allocation{}, err
	}
	if rows == 0 {
		return paymentdomain.Allocation{}, ledgerdomain.ErrConcurrencyConflict
	}
	return allocation, nil
}

func (s *Service) loadPayableBill(ctx context.Context, db *gorm.DB, orgID, billID, partyID snowflake.ID) (*billdomain.Bill, error) {
	bill, err := s.billRepo.FindByID(ctx, db, orgID, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, billdomain.ErrBillNotFound
	}
	if bill.PartyID != partyID {
		return nil, paymentdomain.ErrInvalidBill
	}
	if bill.IsReturn {
		return nil, paymentdomain.ErrBillNotPayable
	}
	if bill.Status == billdomain.StatusCancelled {
		return nil, billdomain.ErrBillCancelled
	}
	return bill, nil
}

func (s *Service) audit(ctx context.Context, payment paymentdomain.Payment, rawDetails []byte) {
	if s.auditSvc == nil {
		return
	}
	var details map[string]any
	if err := json.Unmarshal(rawDetails, &details); err != nil {
		details = nil
	}
	metadata := map[string]any{
		"party_id": payment.PartyID.String(),
		"amount":   money.Format(payment.Amount),
		"mode":     string(payment.Mode),
		"details":  masking.MaskFields(details, "utr", "number"),
	}
	if payment.BillID != nil {
		metadata["bill_id"] = payment.BillID.String()
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActionPaymentRecorded, "payment", payment.ID.String(), metadata); err != nil {
		s.log.Warn("failed to write payment audit log", zap.Error(err))
	}
}
