package service

import (
	"context"
	"fmt"

	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/bill/domain"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CancelBill reverses the bill's posting with an equal and opposite
// cancellation entry and marks the bill cancelled in the same transaction.
// Bills are never deleted.
func (s *Service) CancelBill(ctx context.Context, billID string) (domain.CancelBillResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.CancelBillResult{}, domain.ErrInvalidOrganization
	}
	id, err := parseBillID(billID)
	if err != nil {
		return domain.CancelBillResult{}, err
	}

	bill, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.CancelBillResult{}, err
	}
	if bill == nil {
		return domain.CancelBillResult{}, domain.ErrBillNotFound
	}
	if bill.Status == domain.StatusCancelled {
		return domain.CancelBillResult{}, domain.ErrBillCancelled
	}

	postedKind := ledgerdomain.KindBill
	if bill.IsReturn {
		postedKind = ledgerdomain.KindReturn
	}
	original, err := s.ledger.FindByBillAndKind(ctx, bill.ID.String(), postedKind)
	if err != nil {
		return domain.CancelBillResult{}, err
	}
	if original == nil {
		return domain.CancelBillResult{}, fmt.Errorf("%w: bill %s has no %s entry", domain.ErrReconciliationRequired, bill.ID, postedKind)
	}

	entry, err := s.ledger.Post(ctx, ledgerdomain.PostRequest{
		PartyID:   bill.PartyID,
		Direction: bill.Direction,
		Kind:      ledgerdomain.KindCancellation,
		Narration: "Cancellation of " + bill.BillNumber,
		Amount:    original.Amount,
		BillID:    &bill.ID,
		Attach: func(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.LedgerEntry) error {
			if !bill.IsReturn {
				returns, err := s.repo.CountActiveReturns(ctx, tx, orgID, bill.ID)
				if err != nil {
					return err
				}
				if returns > 0 {
					return domain.ErrBillHasReturns
				}
			}
			rows, err := s.repo.MarkCancelled(ctx, tx, orgID, bill.ID, entry.CreatedAt)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrBillCancelled
			}
			return nil
		},
	})
	if err != nil {
		if isDuplicate(err) {
			return domain.CancelBillResult{}, domain.ErrBillCancelled
		}
		return domain.CancelBillResult{}, err
	}

	cancelledAt := entry.CreatedAt
	bill.Status = domain.StatusCancelled
	bill.CancelledAt = &cancelledAt
	bill.UpdatedAt = cancelledAt

	obslogger.WithContext(ctx, s.log).Info("bill cancelled",
		zap.String("bill_id", bill.ID.String()),
		zap.String("party_id", bill.PartyID.String()),
		zap.Bool("is_return", bill.IsReturn),
		zap.String("reversed_amount", entry.Amount.String()),
		zap.String("closing_amount", entry.ClosingAmount.String()),
	)
	s.obsMetrics.RecordBillCancelled(ctx, string(bill.Direction))
	s.audit(ctx, auditdomain.ActionBillCancelled, bill.ID, map[string]any{
		"bill_number":     bill.BillNumber,
		"party_id":        bill.PartyID.String(),
		"is_return":       bill.IsReturn,
		"reversed_amount": money.Format(entry.Amount),
	})

	return domain.CancelBillResult{Bill: *bill, ReversingEntry: *entry}, nil
}
