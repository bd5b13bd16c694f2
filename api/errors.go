package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/fuelledger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{fuelledger.ErrTankNotFound, http.StatusNotFound, "tank_not_found"},
	{fuelledger.ErrEntryNotFound, http.StatusNotFound, "entry_not_found"},
	{fuelledger.ErrRecordNotFound, http.StatusNotFound, "record_not_found"},
	{fuelledger.ErrNotFound, http.StatusNotFound, "not_found"},
	{fuelledger.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{fuelledger.ErrInvalidLeg, http.StatusBadRequest, "invalid_leg"},
	{fuelledger.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{fuelledger.ErrDuplicateAllocation, http.StatusConflict, "duplicate_allocation"},
	{fuelledger.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{fuelledger.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{fuelledger.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
	{fuelledger.ErrPreexistingInconsistency, http.StatusUnprocessableEntity, "preexisting_inconsistency"},
	{fuelledger.ErrDanglingOperationReference, http.StatusUnprocessableEntity, "dangling_operation_reference"},
	{fuelledger.ErrNoDrift, http.StatusConflict, "no_drift"},
	{fuelledger.ErrNoLedgerEntry, http.StatusUnprocessableEntity, "no_ledger_entry"},
	{fuelledger.ErrReconcileAborted, http.StatusConflict, "reconcile_aborted"},
	{fuelledger.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{fuelledger.ErrOperationTimedOut, http.StatusGatewayTimeout, "operation_timed_out"},
	{fuelledger.ErrLookupUnavailable, http.StatusServiceUnavailable, "lookup_unavailable"},
	{fuelledger.ErrStoreClosed, http.StatusServiceUnavailable, "store_closed"},
}

// classify returns the status and code for err.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// details extracts the typed error carrying the fields of a failure.
func details(err error) any {
	var (
		validation  fuelledger.ValidationError
		quantity    *fuelledger.InvalidQuantityError
		duplicate   *fuelledger.DuplicateAllocationError
		balance     *fuelledger.InsufficientBalanceError
		capacity    *fuelledger.CapacityExceededError
		preexisting *fuelledger.PreexistingInconsistencyError
		dangling    *fuelledger.DanglingOperationReferenceError
		timeout     *fuelledger.OperationTimedOutError
		conflict    *fuelledger.ConcurrentModificationError
	)
	switch {
	case errors.As(err, &validation):
		return validation
	case errors.As(err, &quantity):
		return quantity
	case errors.As(err, &duplicate):
		return duplicate
	case errors.As(err, &balance):
		return balance
	case errors.As(err, &capacity):
		return capacity
	case errors.As(err, &preexisting):
		return preexisting
	case errors.As(err, &dangling):
		return dangling
	case errors.As(err, &timeout):
		return timeout
	case errors.As(err, &conflict):
		return conflict
	}
	return nil
}

// fail writes err as an ErrorBody and aborts the request.
func (h *Handler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	body := ErrorBody{
		Code:      code,
		Message:   err.Error(),
		Retryable: fuelledger.IsRetryable(err),
		Details:   details(err),
		RequestID: c.GetString(requestIDKey),
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", c.FullPath(),
			"request_id", body.RequestID,
			"error", err,
		)
		body.Message = "internal error"
	}
	_ = c.Error(err) //nolint:errcheck // attaches err for middleware
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a malformed request body or parameter.
func (h *Handler) badRequest(c *gin.Context, field string, err error) {
	h.fail(c, fuelledger.ValidationError{Field: field, Message: err.Error()})
}
