package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/smallbiznis/billbook/pkg/money"
)

type registerPartyRequest struct {
	DisplayName    string           `json:"display_name" binding:"required"`
	Role           string           `json:"role" binding:"required"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
}

func (s *Server) RegisterParty(c *gin.Context) {
	var req registerPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partySvc.Register(c.Request.Context(), partydomain.RegisterPartyRequest{
		DisplayName:    strings.TrimSpace(req.DisplayName),
		Role:           strings.TrimSpace(req.Role),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListParties(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Role       string `form:"role"`
		ActiveOnly string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	resp, err := s.partySvc.List(c.Request.Context(), partydomain.ListPartyRequest{
		Role:       strings.TrimSpace(query.Role),
		ActiveOnly: activeOnly != nil && *activeOnly,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Parties, "page_info": resp.PageInfo})
}

func (s *Server) GetPartyByID(c *gin.Context) {
	resp, err := s.partySvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPartyBalance(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	balance, err := s.partySvc.GetPartyBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"party_id":        id,
		"running_balance": money.Format(balance),
	}})
}

func (s *Server) ListPartyLedger(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.ListEntries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		PartyID:    strings.TrimSpace(c.Param("id")),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

// ReplayPartyLedger reports a mismatch with 409 and still returns the replay
// figures so the operator can see where the chain broke.
func (s *Server) ReplayPartyLedger(c *gin.Context) {
	resp, err := s.ledgerSvc.Replay(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	status := http.StatusOK
	switch {
	case errors.Is(err, ledgerdomain.ErrLedgerMismatch):
		status = http.StatusConflict
	case err != nil:
		AbortWithError(c, err)
		return
	}
	c.JSON(status, gin.H{"data": gin.H{
		"party_id":         resp.PartyID.String(),
		"entries":          resp.Entries,
		"computed_balance": money.Format(resp.ComputedBalance),
		"stored_balance":   money.Format(resp.StoredBalance),
		"broken_sequence":  resp.BrokenSequence,
		"consistent":       resp.Consistent(),
	}})
}

func (s *Server) DeactivateParty(c *gin.Context) {
	resp, err := s.partySvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
