// Package api exposes the fuel ledger over HTTP using gin.
//
// Every route lives under /v1 except /healthz. Errors are returned as a
// JSON body with a stable code, a message, a retryable flag, and the
// typed error's fields as details.
package api

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/operator"
)

// DefaultLegLimit caps leg listings when the caller sends no limit.
const DefaultLegLimit = 500

// MaxLegLimit is the largest limit a leg listing accepts.
const MaxLegLimit = 5000

// Handler serves the HTTP API for one ledger.
type Handler struct {
	ledger   *fuelledger.Ledger
	logger   *slog.Logger
	operator operator.Config
	basePath string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithOperatorConfig sets how operator identity is resolved.
func WithOperatorConfig(cfg operator.Config) Option {
	return func(h *Handler) { h.operator = cfg }
}

// WithBasePath mounts every route under prefix, for example "/fuelledger".
func WithBasePath(prefix string) Option {
	return func(h *Handler) { h.basePath = strings.TrimSuffix(prefix, "/") }
}

// New creates a Handler serving l.
func New(l *fuelledger.Ledger, opts ...Option) *Handler {
	h := &Handler{
		ledger: l,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds a gin engine with recovery, request IDs, access logging,
// operator resolution, and every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.logger))
	h.Register(r.Group(h.basePath))
	return r
}

// Register mounts the API on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1", operator.Middleware(h.operator))

	v1.GET("/tanks", h.listTanks)
	v1.POST("/tanks", h.provisionTank)
	v1.GET("/tanks/:tankID", h.getTank)
	v1.POST("/tanks/:tankID/allocations", h.allocate)
	v1.GET("/tanks/:tankID/balances", h.balances)
	v1.GET("/tanks/:tankID/consistency", h.consistency)
	v1.POST("/tanks/:tankID/corrections", operator.Require(), h.correct)
	v1.GET("/tanks/:tankID/legs", h.tankLegs)
	v1.GET("/tanks/:tankID/reconciliations", h.records)
	v1.GET("/tanks/:tankID/dangling-operations", h.danglingOperations)

	v1.GET("/mrns/:mrn/legs", h.mrnLegs)
	v1.GET("/mrns/:mrn/entries", h.mrnEntries)

	v1.POST("/movements", h.movement)
	v1.POST("/transfers", h.transfer)
	v1.POST("/reconcile", h.reconcile)
}
