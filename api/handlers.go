package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/operator"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// ──────────────────────────────────────────────────
// Health
// ──────────────────────────────────────────────────

func (h *Handler) health(c *gin.Context) {
	if err := h.ledger.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Tanks
// ──────────────────────────────────────────────────

type provisionRequest struct {
	ID             id.TankID         `json:"id"`
	Name           string            `json:"name"`
	Kind           tank.Kind         `json:"kind"`
	CapacityLiters types.Quantity    `json:"capacity_liters"`
	CurrentLiters  types.Quantity    `json:"current_liters"`
	CurrentKg      types.Quantity    `json:"current_kg"`
	Density        types.Density     `json:"density"`
	Metadata       map[string]string `json:"metadata"`
}

func (h *Handler) provisionTank(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", err)
		return
	}

	t := &tank.Tank{
		ID:             req.ID,
		Name:           req.Name,
		Kind:           req.Kind,
		CapacityLiters: req.CapacityLiters,
		CurrentLiters:  req.CurrentLiters,
		CurrentKg:      req.CurrentKg,
		Density:        req.Density,
		Metadata:       req.Metadata,
	}
	if err := h.ledger.ProvisionTank(c.Request.Context(), t); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) listTanks(c *gin.Context) {
	limit, offset, ok := h.paging(c)
	if !ok {
		return
	}
	tanks, err := h.ledger.ListTanks(c.Request.Context(), tank.ListOpts{
		Kind:   tank.Kind(c.Query("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tanks": tanks})
}

func (h *Handler) getTank(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	t, err := h.ledger.GetTank(c.Request.Context(), tankID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tank":               t,
		"effective_capacity": h.ledger.EffectiveCapacity(t),
		"capacity_valid":     t.CapacityValid(),
	})
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

type allocateRequest struct {
	MRN    string         `json:"mrn"`
	Liters types.Quantity `json:"liters"`
	Kg     types.Quantity `json:"kg"`
}

func (h *Handler) allocate(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", err)
		return
	}

	entry, err := h.ledger.Allocate(c.Request.Context(), fuelledger.AllocateInput{
		TankID: tankID,
		MRN:    req.MRN,
		Liters: req.Liters,
		Kg:     req.Kg,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) balances(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	entries, err := h.ledger.ActiveBalances(c.Request.Context(), tankID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tank_id": tankID, "entries": entries})
}

func (h *Handler) mrnEntries(c *gin.Context) {
	entries, err := h.ledger.EntriesForMRN(c.Request.Context(), c.Param("mrn"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) movement(c *gin.Context) {
	var in fuelledger.MovementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "body", err)
		return
	}
	if op, ok := operator.FromContext(c.Request.Context()); ok {
		in.OperatorID = op
	}

	res, err := h.ledger.Movement(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) transfer(c *gin.Context) {
	var in fuelledger.TransferInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "body", err)
		return
	}
	if op, ok := operator.FromContext(c.Request.Context()); ok {
		in.OperatorID = op
	}

	res, err := h.ledger.Transfer(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ──────────────────────────────────────────────────
// Journal
// ──────────────────────────────────────────────────

func (h *Handler) tankLegs(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	r, ok := h.timeRange(c)
	if !ok {
		return
	}
	h.streamLegs(c, journal.Query{TankID: tankID, Range: r})
}

func (h *Handler) mrnLegs(c *gin.Context) {
	r, ok := h.timeRange(c)
	if !ok {
		return
	}
	number, err := mrn.NormalizeNumber(c.Param("mrn"))
	if err != nil {
		h.badRequest(c, "mrn", err)
		return
	}
	h.streamLegs(c, journal.Query{MRN: number, Range: r})
}

// streamLegs collects at most limit legs in journal order and returns the
// cursor to resume from when the listing was cut short.
func (h *Handler) streamLegs(c *gin.Context, q journal.Query) {
	limit := DefaultLegLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLegLimit {
			h.badRequest(c, "limit", errors.New("must be between 1 and "+strconv.Itoa(MaxLegLimit)))
			return
		}
		limit = n
	}
	if raw := c.Query("after_sequence"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.badRequest(c, "after_sequence", err)
			return
		}
		at, err := time.Parse(time.RFC3339Nano, c.Query("after_occurred_at"))
		if err != nil {
			h.badRequest(c, "after_occurred_at", err)
			return
		}
		q.After = &journal.Cursor{OccurredAt: at, Sequence: seq}
	}

	legs := make([]*journal.Leg, 0, min(limit, 64))
	var next *journal.Cursor
	for leg, err := range h.ledger.Legs(c.Request.Context(), q) {
		if err != nil {
			h.fail(c, err)
			return
		}
		if len(legs) == limit {
			next = journal.CursorOf(legs[len(legs)-1])
			break
		}
		legs = append(legs, leg)
	}
	c.JSON(http.StatusOK, gin.H{"legs": legs, "next": next})
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

func (h *Handler) consistency(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	var (
		status *fuelledger.Status
		err    error
	)
	if force, _ := strconv.ParseBool(c.Query("force")); force {
		status, err = h.ledger.ForceRecheck(c.Request.Context(), tankID)
	} else {
		status, err = h.ledger.StatusForTank(c.Request.Context(), tankID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type reconcileRequest struct {
	TankID id.TankID `json:"tank_id"`
	All    bool      `json:"all"`
}

func (h *Handler) reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", err)
		return
	}
	if req.All == !req.TankID.IsNil() {
		h.badRequest(c, "body", errors.New(`send exactly one of "tank_id" or "all": true`))
		return
	}

	if req.All {
		batch, err := h.ledger.ReconcileAll(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), req.TankID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type correctionRequest struct {
	Reason    string                        `json:"reason"`
	Direction reconcile.CorrectionDirection `json:"direction"`
}

func (h *Handler) correct(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "body", err)
		return
	}
	op, _ := operator.FromContext(c.Request.Context())

	res, err := h.ledger.Correct(c.Request.Context(), fuelledger.CorrectionInput{
		TankID:     tankID,
		OperatorID: op,
		Reason:     req.Reason,
		Direction:  req.Direction,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) records(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	limit, offset, ok := h.paging(c)
	if !ok {
		return
	}
	recs, err := h.ledger.Records(c.Request.Context(), tankID, reconcile.ListOpts{
		Classification: reconcile.Classification(c.Query("classification")),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) danglingOperations(c *gin.Context) {
	tankID, ok := h.tankID(c)
	if !ok {
		return
	}
	r, ok := h.timeRange(c)
	if !ok {
		return
	}
	ids, err := h.ledger.VerifyOperationReferences(c.Request.Context(), tankID, r)
	if err != nil {
		h.fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tank_id": tankID, "operation_ids": ids})
}

// ──────────────────────────────────────────────────
// Parameters
// ──────────────────────────────────────────────────

func (h *Handler) tankID(c *gin.Context) (id.TankID, bool) {
	tankID, err := id.ParseTankID(c.Param("tankID"))
	if err != nil {
		h.badRequest(c, "tank_id", err)
		return id.Nil, false
	}
	return tankID, true
}

func (h *Handler) paging(c *gin.Context) (limit, offset int, ok bool) {
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.badRequest(c, p.name, errors.New("must be a non-negative integer"))
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

// timeRange reads from and to as RFC 3339 timestamps. Missing bounds are open.
func (h *Handler) timeRange(c *gin.Context) (journal.TimeRange, bool) {
	var r journal.TimeRange
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &r.From}, {"to", &r.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.badRequest(c, p.name, err)
			return r, false
		}
		*p.dst = t
	}
	return r, true
}
