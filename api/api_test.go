package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/api"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/operator"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/store/memory"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := fuelledger.New(memory.New(), fuelledger.WithLogger(logger))
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })

	h := api.New(l,
		api.WithLogger(logger),
		api.WithOperatorConfig(operator.Config{TrustHeader: true}),
	)
	return h.Router()
}

func do(t *testing.T, srv http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func provisionTank(t *testing.T, srv http.Handler, current string) *tank.Tank {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/v1/tanks", map[string]any{
		"name":            "Hydrant 1",
		"kind":            "fixed",
		"capacity_liters": "24500",
		"current_liters":  current,
		"density":         "0.8",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*tank.Tank](t, w)
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMovementFlow(t *testing.T) {
	srv := newServer(t)
	tk := provisionTank(t, srv, "0")

	w := do(t, srv, http.MethodPost, "/v1/movements", map[string]any{
		"tank_id": tk.ID.String(),
		"type":    "REFILL",
		"mrn":     "mrn1",
		"liters":  "1000",
	}, operator.HeaderID, "op-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[fuelledger.MovementResult](t, w)
	assert.Equal(t, "MRN1", res.Leg.MRN)
	assert.Equal(t, "op-1", res.Leg.OperatorID)
	assert.True(t, res.Leg.Kg.Equal(types.Whole(800)), "kg derived from density: %s", res.Leg.Kg)
	assert.True(t, res.Tank.CurrentLiters.Equal(types.Whole(1000)))

	w = do(t, srv, http.MethodGet, "/v1/tanks/"+tk.ID.String()+"/balances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balances := decode[struct {
		Entries []*mrn.Entry `json:"entries"`
	}](t, w)
	require.Len(t, balances.Entries, 1)
	assert.True(t, balances.Entries[0].RemainingLiters.Equal(types.Whole(1000)))

	for _, path := range []string{"/v1/tanks/" + tk.ID.String() + "/legs", "/v1/mrns/mrn1/legs"} {
		w = do(t, srv, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		legs := decode[struct {
			Legs []*journal.Leg  `json:"legs"`
			Next *journal.Cursor `json:"next"`
		}](t, w)
		assert.Len(t, legs.Legs, 1, path)
		assert.Nil(t, legs.Next, path)
	}
}

func TestLegsPaging(t *testing.T) {
	srv := newServer(t)
	tk := provisionTank(t, srv, "0")
	for range 3 {
		w := do(t, srv, http.MethodPost, "/v1/movements", map[string]any{
			"tank_id": tk.ID.String(), "type": "REFILL", "mrn": "MRN1", "liters": "100",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, srv, http.MethodGet, "/v1/tanks/"+tk.ID.String()+"/legs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Legs []*journal.Leg  `json:"legs"`
		Next *journal.Cursor `json:"next"`
	}](t, w)
	require.Len(t, page.Legs, 2)
	require.NotNil(t, page.Next)
	assert.Equal(t, page.Legs[1].Sequence, page.Next.Sequence)
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	tk := provisionTank(t, srv, "0")
	w := do(t, srv, http.MethodPost, "/v1/movements", map[string]any{
		"tank_id": tk.ID.String(), "type": "REFILL", "mrn": "MRN1", "liters": "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name: "insufficient balance", method: http.MethodPost, path: "/v1/movements",
			body:   map[string]any{"tank_id": tk.ID.String(), "type": "DRAIN", "mrn": "MRN1", "liters": "5000"},
			status: http.StatusUnprocessableEntity, code: "insufficient_balance",
		},
		{
			name: "capacity exceeded", method: http.MethodPost, path: "/v1/movements",
			body:   map[string]any{"tank_id": tk.ID.String(), "type": "REFILL", "mrn": "MRN1", "liters": "30000"},
			status: http.StatusUnprocessableEntity, code: "capacity_exceeded",
		},
		{
			name: "invalid quantity", method: http.MethodPost, path: "/v1/movements",
			body:   map[string]any{"tank_id": tk.ID.String(), "type": "REFILL", "mrn": "MRN1", "liters": "-5"},
			status: http.StatusBadRequest, code: "invalid_quantity",
		},
		{
			name: "duplicate allocation", method: http.MethodPost, path: "/v1/tanks/" + tk.ID.String() + "/allocations",
			body:   map[string]any{"mrn": "MRN1", "liters": "1"},
			status: http.StatusConflict, code: "duplicate_allocation",
		},
		{
			name: "unknown tank", method: http.MethodGet, path: "/v1/tanks/" + id.NewTankID().String(),
			status: http.StatusNotFound, code: "tank_not_found",
		},
		{
			name: "malformed tank id", method: http.MethodGet, path: "/v1/tanks/not-an-id",
			status: http.StatusBadRequest, code: "invalid_input",
		},
		{
			name: "reconcile needs a target", method: http.MethodPost, path: "/v1/reconcile",
			body:   map[string]any{},
			status: http.StatusBadRequest, code: "invalid_input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			body := decode[api.ErrorBody](t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.False(t, body.Retryable)
			assert.NotEmpty(t, body.RequestID)
		})
	}

	t.Run("details carry the excess", func(t *testing.T) {
		w := do(t, srv, http.MethodPost, "/v1/movements", map[string]any{
			"tank_id": tk.ID.String(), "type": "REFILL", "mrn": "MRN1", "liters": "30000",
		})
		body := decode[struct {
			Details fuelledger.CapacityExceededError `json:"details"`
		}](t, w)
		assert.True(t, body.Details.ExcessLiters.Equal(types.Whole(6500)), "excess: %s", body.Details.ExcessLiters)
	})
}

func TestCorrectionFlow(t *testing.T) {
	srv := newServer(t)
	tk := provisionTank(t, srv, "1300")
	base := "/v1/tanks/" + tk.ID.String()

	w := do(t, srv, http.MethodPost, base+"/allocations", map[string]any{"mrn": "MRN1", "liters": "1000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPost, "/v1/reconcile", map[string]any{"tank_id": tk.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[reconcile.Record](t, w)
	assert.Equal(t, reconcile.Major, rec.Classification)

	w = do(t, srv, http.MethodPost, base+"/corrections", map[string]any{"reason": "dip reading"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "corrections need an operator")

	w = do(t, srv, http.MethodPost, base+"/corrections",
		map[string]any{"reason": "dip reading", "direction": "tank"},
		operator.HeaderID, "op-9")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	corr := decode[fuelledger.CorrectionResult](t, w)
	assert.Equal(t, journal.TypeCorrection, corr.Leg.Type)
	assert.Equal(t, "op-9", corr.Record.OperatorID)
	assert.Equal(t, rec.ID.String(), corr.Record.ResolvesRecordID.String())

	w = do(t, srv, http.MethodGet, base+"/consistency?force=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode[fuelledger.Status](t, w)
	assert.Equal(t, reconcile.Consistent, status.Classification)
	assert.Equal(t, fuelledger.SourceRecheck, status.Source)

	w = do(t, srv, http.MethodPost, "/v1/reconcile", map[string]any{"all": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batch := decode[fuelledger.BatchResult](t, w)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, reconcile.Consistent, batch.Results[0].Record.Classification)
}

func TestRequestID(t *testing.T) {
	srv := newServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", nil)
	_, err := uuid.Parse(w.Header().Get(api.HeaderRequestID))
	assert.NoError(t, err)

	rid := uuid.NewString()
	w = do(t, srv, http.MethodGet, "/healthz", nil, api.HeaderRequestID, rid)
	assert.Equal(t, rid, w.Header().Get(api.HeaderRequestID))
}
