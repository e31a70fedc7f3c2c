package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/internal/partylock"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	BillID  string            `json:"bill_id,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrMissingOrganization = errors.New("missing_organization")
	ErrNotFound            = errors.New("not_found")
	ErrInvalidRequest      = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns a domain error into the HTTP status and body. Order matters:
// reconciliation and payment_not_recorded wrap the failure that caused them.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var recErr *billdomain.ReconciliationError
	if errors.As(err, &recErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:    "reconciliation_required",
			Message: "bill needs manual reconciliation",
			BillID:  recErr.BillID.String(),
		}
	}
	if errors.Is(err, billdomain.ErrReconciliationRequired) {
		return http.StatusInternalServerError, errorPayload{
			Type:    "reconciliation_required",
			Message: "bill needs manual reconciliation",
		}
	}

	if errors.Is(err, billdomain.ErrPaymentNotRecorded) {
		return http.StatusInternalServerError, errorPayload{
			Type:    "payment_not_recorded",
			Message: "bill created but the tendered payment was not recorded",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var detailsErr *paymentdomain.DetailsError
	if errors.As(err, &detailsErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "details." + strings.ToLower(detailsErr.Field),
					Code:    "invalid_details",
					Message: "failed on " + detailsErr.Tag,
				},
			},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrMissingOrganization):
		return http.StatusUnauthorized, errorPayload{
			Type:    "missing_organization",
			Message: "organization header required",
		}
	case errors.Is(err, partydomain.ErrUnknownParty):
		return http.StatusNotFound, errorPayload{
			Type:    "unknown_party",
			Message: "party not found",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, partydomain.ErrPartyInactive):
		return http.StatusConflict, errorPayload{
			Type:    "party_inactive",
			Message: "party is inactive",
		}
	case errors.Is(err, billdomain.ErrBillCancelled):
		return http.StatusConflict, errorPayload{
			Type:    "bill_cancelled",
			Message: "bill is cancelled",
		}
	case errors.Is(err, billdomain.ErrBillHasReturns):
		return http.StatusConflict, errorPayload{
			Type:    "bill_has_returns",
			Message: "cancel the bill's returns first",
		}
	case errors.Is(err, billdomain.ErrDuplicateBillNumber):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_bill_number",
			Message: "bill number already used",
		}
	case errors.Is(err, paymentdomain.ErrBillNotPayable):
		return http.StatusConflict, errorPayload{
			Type:    "bill_not_payable",
			Message: "bill does not accept payments",
		}
	case errors.Is(err, ledgerdomain.ErrDuplicatePosting):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_posting",
			Message: "ledger entry already posted",
		}
	case errors.Is(err, ledgerdomain.ErrConcurrencyConflict),
		errors.Is(err, partylock.ErrLockTimeout):
		return http.StatusConflict, errorPayload{
			Type:    "concurrency_conflict",
			Message: "party balance changed concurrently, retry",
		}
	case errors.Is(err, ledgerdomain.ErrLedgerMismatch):
		return http.StatusConflict, errorPayload{
			Type:    "ledger_mismatch",
			Message: "ledger replay does not match stored balance",
		}
	case errors.Is(err, billdomain.ErrLedgerPostFailure):
		return http.StatusInternalServerError, errorPayload{
			Type:    "ledger_post_failure",
			Message: "ledger posting failed, bill was not created",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return billdomain.IsValidation(err)
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billdomain.ErrBillNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, code := range []error{
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		partydomain.ErrDirectionMismatch,
		taxdomain.ErrEmptyBill,
		taxdomain.ErrInvalidLineItem,
		taxdomain.ErrInvalidTaxRate,
		paymentdomain.ErrInvalidDetails,
		paymentdomain.ErrInvalidMode,
		paymentdomain.ErrInvalidAmount,
	} {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return rootCode(err)
}

// rootCode returns the innermost message, which for sentinel errors is the
// snake_case code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_bill", "invalid_line_item":
		return "lines"
	case "direction_mismatch":
		return "direction"
	case "invalid_amount_precision":
		return "amount"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_bill":
		return "bill must have at least one line"
	case "direction_mismatch":
		return "direction does not match the party role"
	case "return_exceeds_original":
		return "returned quantity exceeds what remains on the original line"
	case "invalid_amount_precision":
		return "amounts carry at most two decimal places"
	case "return_of_return":
		return "a return bill cannot be returned"
	default:
		return "invalid value"
	}
}
