package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
)

type recordPaymentRequest struct {
	PartyID   string                       `json:"party_id" binding:"required"`
	Direction string                       `json:"direction" binding:"required"`
	Amount    decimal.Decimal              `json:"amount"`
	Details   paymentdomain.PaymentDetails `json:"details"`
	BillID    string                       `json:"bill_id"`
	Narration string                       `json:"narration"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		PartyID:   strings.TrimSpace(req.PartyID),
		Direction: strings.TrimSpace(req.Direction),
		Amount:    req.Amount,
		Details:   req.Details,
		BillID:    strings.TrimSpace(req.BillID),
		Narration: strings.TrimSpace(req.Narration),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
