package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smartsave/gateway/internal/domain"
	"github.com/smartsave/gateway/internal/infrastructure/worker"
	"github.com/smartsave/gateway/internal/usecase"
)

const (
	serviceName    = "smartsave-gateway"
	serviceVersion = "1.0.0"
)

// ProductGateway is the subset of the query gateway the handlers use
type ProductGateway interface {
	SearchAsync(term string) *worker.Future[[]domain.Product]
	RecentItemsAsync(region string) *worker.Future[[]domain.Product]
	ProductDetailAsync(id string) *worker.Future[*domain.Product]
	SetRegion(code string)
	Region() string
	State() usecase.GatewayState
	Available() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	gateway ProductGateway
}

// NewHandler creates a new HTTP handler
func NewHandler(gateway ProductGateway) *Handler {
	return &Handler{gateway: gateway}
}

// ProductListResponse is the body returned by listing endpoints
type ProductListResponse struct {
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
	Region   string           `json:"region,omitempty"`
}

// RegionRequest is the body accepted by the region endpoint
type RegionRequest struct {
	Postcode string `json:"postcode" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthCheck reports the gateway state. Anything but ready answers 503.
func (h *Handler) HealthCheck(c *gin.Context) {
	state := h.gateway.State()

	status := "healthy"
	code := http.StatusOK
	switch state {
	case usecase.StateReady:
	case usecase.StateClosed:
		status, code = "closed", http.StatusServiceUnavailable
	default:
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":            status,
		"state":             state.String(),
		"service":           serviceName,
		"version":           serviceVersion,
		"backend_available": h.gateway.Available(),
		"region":            h.gateway.Region(),
	})
}

// SearchProducts handles GET /api/v1/products/search?q=
func (h *Handler) SearchProducts(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrInvalidRequest.Error() + ": q is required"})
		return
	}

	products, err := h.gateway.SearchAsync(term).Await(c.Request.Context())
	if err != nil {
		respondAwaitError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductListResponse{Products: products, Count: len(products), Region: h.gateway.Region()})
}

// RecentProducts handles GET /api/v1/products/new?postcode=
func (h *Handler) RecentProducts(c *gin.Context) {
	region := strings.TrimSpace(c.Query("postcode"))

	products, err := h.gateway.RecentItemsAsync(region).Await(c.Request.Context())
	if err != nil {
		respondAwaitError(c, err)
		return
	}
	if region == "" {
		region = h.gateway.Region()
	}
	c.JSON(http.StatusOK, ProductListResponse{Products: products, Count: len(products), Region: region})
}

// GetProduct handles GET /api/v1/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.gateway.ProductDetailAsync(c.Param("id")).Await(c.Request.Context())
	if err != nil {
		respondAwaitError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// SetRegion handles PUT /api/v1/region
func (h *Handler) SetRegion(c *gin.Context) {
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Postcode) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrInvalidRequest.Error() + ": postcode is required"})
		return
	}

	h.gateway.SetRegion(req.Postcode)
	c.Status(http.StatusNoContent)
}

func respondAwaitError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "query timed out"})
		return
	}
	// Client went away; nothing useful to send
	c.AbortWithStatus(http.StatusServiceUnavailable)
}
