package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/bill/domain"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostReturn creates a return bill for part of an original bill and posts the
// reversing entry. Partial lines are recomputed at the original unit price and
// rate; the return that completes a line takes whatever the earlier returns
// left of it, so all returns of a bill add up to exactly what it posted. The
// returned-quantity check and the return bill insert run inside the posting
// transaction under the party lock.
func (s *Service) PostReturn(ctx context.Context, req domain.PostReturnRequest) (domain.PostReturnResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PostReturnResult{}, domain.ErrInvalidOrganization
	}
	originalID, err := parseBillID(req.OriginalBillID)
	if err != nil {
		return domain.PostReturnResult{}, err
	}
	if len(req.Lines) == 0 {
		return domain.PostReturnResult{}, taxdomain.ErrEmptyBill
	}

	original, err := s.repo.FindByID(ctx, s.db, orgID, originalID)
	if err != nil {
		return domain.PostReturnResult{}, err
	}
	if original == nil {
		return domain.PostReturnResult{}, domain.ErrBillNotFound
	}
	if original.IsReturn {
		return domain.PostReturnResult{}, domain.ErrReturnOfReturn
	}
	if original.Status == domain.StatusCancelled {
		return domain.PostReturnResult{}, domain.ErrBillCancelled
	}

	originalLines, err := s.repo.ListLines(ctx, s.db, orgID, original.ID)
	if err != nil {
		return domain.PostReturnResult{}, err
	}

	requested := make(map[int]int64, len(req.Lines))
	for _, line := range req.Lines {
		if line.LineIndex < 0 || line.LineIndex >= len(originalLines) || line.Quantity <= 0 {
			return domain.PostReturnResult{}, domain.ErrInvalidReturnLine
		}
		requested[line.LineIndex] += line.Quantity
	}
	indexes := make([]int, 0, len(requested))
	for idx := range requested {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	returned, err := s.repo.ReturnedLines(ctx, s.db, orgID, original.ID)
	if err != nil {
		return domain.PostReturnResult{}, err
	}
	if err := checkReturnable(originalLines, indexes, requested, returned); err != nil {
		return domain.PostReturnResult{}, err
	}

	computed, lineReqs, originalIDs, err := computeReturnLines(original, originalLines, indexes, requested, returned)
	if err != nil {
		return domain.PostReturnResult{}, err
	}
	totals, err := taxservice.Aggregate(computed)
	if err != nil {
		return domain.PostReturnResult{}, err
	}

	now := s.clock.Now()
	returnID := s.genID.Generate()
	number := domain.NormalizeNumber(req.BillNumber)
	if number == "" {
		number = domain.DefaultNumber(original.Direction, true, returnID)
	}
	originalRef := original.ID
	returnBill := domain.Bill{
		ID:             returnID,
		OrgID:          orgID,
		BillNumber:     number,
		Direction:      original.Direction,
		PartyID:        original.PartyID,
		Jurisdiction:   original.Jurisdiction,
		AmountPaid:     decimal.Zero,
		Remaining:      decimal.Zero,
		PaymentStatus:  paymentdomain.StatusFull,
		Status:         domain.StatusDraft,
		IsReturn:       true,
		OriginalBillID: &originalRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyTotals(&returnBill, totals)
	returnBill.Lines = s.buildLines(orgID, returnID, lineReqs, computed, originalIDs, now)

	entry, err := s.ledger.Post(ctx, ledgerdomain.PostRequest{
		PartyID:   returnBill.PartyID,
		Direction: returnBill.Direction,
		Kind:      ledgerdomain.KindReturn,
		Narration: "Return against " + original.BillNumber,
		Amount:    returnBill.GrandTotal,
		BillID:    &returnBill.ID,
		Attach: func(ctx context.Context, tx *gorm.DB, _ *ledgerdomain.LedgerEntry) error {
			current, err := s.repo.FindByID(ctx, tx, orgID, original.ID)
			if err != nil {
				return err
			}
			if current == nil {
				return domain.ErrBillNotFound
			}
			if current.Status == domain.StatusCancelled {
				return domain.ErrBillCancelled
			}
			currentReturned, err := s.repo.ReturnedLines(ctx, tx, orgID, original.ID)
			if err != nil {
				return err
			}
			if err := checkReturnable(originalLines, indexes, requested, currentReturned); err != nil {
				return err
			}
			// amounts were computed from the earlier snapshot
			for _, idx := range indexes {
				id := originalLines[idx].ID
				if currentReturned[id].Quantity != returned[id].Quantity {
					return ledgerdomain.ErrConcurrencyConflict
				}
			}
			return s.repo.Insert(ctx, tx, &returnBill)
		},
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.PostReturnResult{}, domain.ErrDuplicateBillNumber
		}
		return domain.PostReturnResult{}, err
	}

	obslogger.WithContext(ctx, s.log).Info("return posted",
		zap.String("bill_id", returnBill.ID.String()),
		zap.String("original_bill_id", original.ID.String()),
		zap.String("party_id", returnBill.PartyID.String()),
		zap.String("grand_total", returnBill.GrandTotal.String()),
		zap.String("closing_amount", entry.ClosingAmount.String()),
	)
	s.obsMetrics.RecordBillCreated(ctx, string(returnBill.Direction), string(returnBill.Jurisdiction), true)
	s.audit(ctx, auditdomain.ActionReturnPosted, returnBill.ID, map[string]any{
		"bill_number":      returnBill.BillNumber,
		"original_bill_id": original.ID.String(),
		"party_id":         returnBill.PartyID.String(),
		"grand_total":      money.Format(returnBill.GrandTotal),
	})

	return domain.PostReturnResult{ReturnBill: returnBill, ReversingEntry: *entry}, nil
}

func checkReturnable(originalLines []domain.BillLine, indexes []int, requested map[int]int64, returned map[snowflake.ID]domain.ReturnedLine) error {
	for _, idx := range indexes {
		src := originalLines[idx]
		if returned[src.ID].Quantity+requested[idx] > src.Quantity {
			return domain.ErrReturnExceedsOriginal
		}
	}
	return nil
}

func computeReturnLines(original *domain.Bill, originalLines []domain.BillLine, indexes []int, requested map[int]int64, returned map[snowflake.ID]domain.ReturnedLine) ([]taxdomain.ComputedLine, []domain.LineRequest, []snowflake.ID, error) {
	computed := make([]taxdomain.ComputedLine, 0, len(indexes))
	lineReqs := make([]domain.LineRequest, 0, len(indexes))
	originalIDs := make([]snowflake.ID, 0, len(indexes))
	for _, idx := range indexes {
		src := originalLines[idx]
		prev := returned[src.ID]

		var line taxdomain.ComputedLine
		if prev.Quantity+requested[idx] == src.Quantity {
			line = prev.Outstanding(src)
		} else {
			rate := src.GSTRate
			var err error
			line, err = taxservice.ComputeLine(taxdomain.LineInput{
				Quantity:     requested[idx],
				UnitPrice:    src.UnitPrice,
				ExplicitRate: &rate,
				Intrastate:   original.Jurisdiction.Intrastate(),
			})
			if err != nil {
				return nil, nil, nil, err
			}
		}

		computed = append(computed, line)
		lineReqs = append(lineReqs, domain.LineRequest{
			ProductRef:  src.ProductRef,
			Description: src.Description,
		})
		originalIDs = append(originalIDs, src.ID)
	}
	return computed, lineReqs, originalIDs, nil
}
