package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type createBillRequest struct {
	BillNumber     string                        `json:"bill_number"`
	Direction      string                        `json:"direction" binding:"required"`
	PartyID        string                        `json:"party_id" binding:"required"`
	Jurisdiction   string                        `json:"jurisdiction" binding:"required"`
	DefaultGSTRate *decimal.Decimal              `json:"default_gst_rate"`
	Lines          []billdomain.LineRequest      `json:"lines"`
	AmountTendered *decimal.Decimal              `json:"amount_tendered"`
	Payment        *paymentdomain.PaymentDetails `json:"payment"`
}

type postReturnRequest struct {
	BillNumber string                         `json:"bill_number"`
	Lines      []billdomain.ReturnLineRequest `json:"lines"`
}

func (s *Server) CreateBill(c *gin.Context) {
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.CreateBill(c.Request.Context(), billdomain.CreateBillRequest{
		BillNumber:     strings.TrimSpace(req.BillNumber),
		Direction:      strings.TrimSpace(req.Direction),
		PartyID:        strings.TrimSpace(req.PartyID),
		Jurisdiction:   strings.TrimSpace(req.Jurisdiction),
		DefaultGSTRate: req.DefaultGSTRate,
		Lines:          req.Lines,
		AmountTendered: decimalOrZero(req.AmountTendered),
		Payment:        req.Payment,
	})
	if errors.Is(err, billdomain.ErrPaymentNotRecorded) {
		// The bill and its ledger entry stand; only the payment is missing.
		_, payload := mapError(err)
		c.JSON(http.StatusCreated, gin.H{"data": resp, "error": payload})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBills(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PartyID string `form:"party_id"`
		Status  string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.ListBills(c.Request.Context(), billdomain.ListBillRequest{
		PartyID:    strings.TrimSpace(query.PartyID),
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Bills, "page_info": resp.PageInfo})
}

func (s *Server) GetBillByID(c *gin.Context) {
	resp, err := s.billSvc.GetBill(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBillPayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByBill(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelBill(c *gin.Context) {
	resp, err := s.billSvc.CancelBill(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PostReturn(c *gin.Context) {
	var req postReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.PostReturn(c.Request.Context(), billdomain.PostReturnRequest{
		OriginalBillID: strings.TrimSpace(c.Param("id")),
		BillNumber:     strings.TrimSpace(req.BillNumber),
		Lines:          req.Lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
