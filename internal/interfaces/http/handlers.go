package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/application/procurement"
	"github.com/garyjia/procureflow/internal/application/service"
	"github.com/garyjia/procureflow/internal/application/workflow"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
)

const (
	// UserIDHeader carries the authenticated user id set by the gateway
	UserIDHeader = "X-User-ID"

	callerKey = "caller"
	xlsxType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RouteService manages approval route templates
type RouteService interface {
	GetRoute(ctx context.Context, id int64) (*entity.ApprovalRoute, error)
	ListRoutes(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalRoute, error)
	CreateRoute(ctx context.Context, route *entity.ApprovalRoute) (*entity.ApprovalRoute, error)
}

// ProcurementService reconciles purchase orders with quote items
type ProcurementService interface {
	SetPurchaseOrderStatus(ctx context.Context, orderID int64, change procurement.StatusChange, caller entity.Caller) (*entity.PurchaseOrder, error)
	MarkItemReceived(ctx context.Context, itemID int64, receipt procurement.Receipt, caller entity.Caller) (*entity.QuoteItem, error)
	ListLogs(ctx context.Context, filter port.LogFilter) ([]*entity.ProcurementLog, error)
	ExportLogs(ctx context.Context, filter port.LogFilter, w io.Writer) error
}

// Services groups the application services served over HTTP
type Services struct {
	Engine      workflow.ApprovalEngine
	Documents   service.DocumentService
	Routes      RouteService
	Procurement ProcurementService
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine      workflow.ApprovalEngine
	documents   service.DocumentService
	routes      RouteService
	procurement ProcurementService
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		engine:      services.Engine,
		documents:   services.Documents,
		routes:      services.Routes,
		procurement: services.Procurement,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ApprovalView is the approval state of one document
type ApprovalView struct {
	Latest  *entity.ApprovalInstance   `json:"latest"`
	History []*entity.ApprovalInstance `json:"history"`
}

// DecisionRequest is the body of approve and reject
type DecisionRequest struct {
	ExpectedStep *int   `json:"expected_step"`
	Reason       string `json:"reason"`
	Notes        string `json:"notes"`
}

// StatusRequest is the body of a purchase order status change
type StatusRequest struct {
	Status    string  `json:"status" binding:"required"`
	OrderDate string  `json:"order_date"`
	Notes     *string `json:"notes"`
}

// ReceiveRequest is the body of a quote item receipt
type ReceiveRequest struct {
	ReceivedDate string `json:"received_date"`
	Notes        string `json:"notes"`
}

// RouteRequest is the body of a route creation
type RouteRequest struct {
	Name         string `json:"name" binding:"required"`
	DocumentType string `json:"document_type" binding:"required"`
	IsDefault    bool   `json:"is_default"`
	Steps        []struct {
		StepOrder    int    `json:"step_order"`
		ApproverRole string `json:"approver_role"`
	} `json:"steps"`
}

// QuoteRequest is the body of a quote creation
type QuoteRequest struct {
	QuoteNumber string `json:"quote_number"`
	Title       string `json:"title"`
	RouteID     *int64 `json:"route_id"`
	Items       []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// PurchaseOrderRequest is the body of a purchase order creation
type PurchaseOrderRequest struct {
	OrderNumber string `json:"order_number"`
	RouteID     *int64 `json:"route_id"`
	Notes       string `json:"notes"`
	Items       []struct {
		QuoteItemID int64 `json:"quote_item_id"`
		Quantity    int   `json:"quantity"`
	} `json:"items"`
}

// LogQuery selects procurement logs
type LogQuery struct {
	QuoteItemID     int64 `form:"quote_item_id"`
	PurchaseOrderID int64 `form:"purchase_order_id"`
	Limit           int   `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ResolveCaller is middleware that loads the acting user from the X-User-ID header
func (h *Handlers) ResolveCaller(c *gin.Context) {
	raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		h.writeError(c, apperr.Unauthorized("resolve caller", "missing or invalid "+UserIDHeader))
		return
	}

	caller, err := h.documents.ResolveCaller(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(callerKey, caller)
	c.Next()
}

func callerOf(c *gin.Context) entity.Caller {
	caller, _ := c.MustGet(callerKey).(entity.Caller)
	return caller
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// ListRoutes handles GET /api/routes
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes, err := h.routes.ListRoutes(c.Request.Context(), entity.DocumentType(c.Query("document_type")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: routes})
}

// GetRoute handles GET /api/routes/:id
func (h *Handlers) GetRoute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	route, err := h.routes.GetRoute(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: route})
}

// CreateRoute handles POST /api/routes
func (h *Handlers) CreateRoute(c *gin.Context) {
	if callerOf(c).Role != entity.RoleAdmin {
		h.writeError(c, apperr.Unauthorized("create route", "only admins may configure approval routes"))
		return
	}

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	route := &entity.ApprovalRoute{
		Name:         req.Name,
		DocumentType: entity.DocumentType(req.DocumentType),
		IsDefault:    req.IsDefault,
	}
	for _, s := range req.Steps {
		route.Steps = append(route.Steps, entity.ApprovalRouteStep{
			StepOrder:    s.StepOrder,
			ApproverRole: entity.Role(s.ApproverRole),
		})
	}

	created, err := h.routes.CreateRoute(c.Request.Context(), route)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// CreateQuote handles POST /api/quotes
func (h *Handlers) CreateQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	quote := &entity.Quote{QuoteNumber: req.QuoteNumber, Title: req.Title, RouteID: req.RouteID}
	for _, item := range req.Items {
		quote.Items = append(quote.Items, entity.QuoteItem{Name: item.Name, Quantity: item.Quantity})
	}

	created, err := h.documents.CreateQuote(c.Request.Context(), quote, callerOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// GetQuote handles GET /api/quotes/:id
func (h *Handlers) GetQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quote, err := h.documents.GetQuote(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// CreatePurchaseOrder handles POST /api/purchase-orders
func (h *Handlers) CreatePurchaseOrder(c *gin.Context) {
	var req PurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order := &entity.PurchaseOrder{OrderNumber: req.OrderNumber, RouteID: req.RouteID, Notes: req.Notes}
	for _, item := range req.Items {
		order.Items = append(order.Items, entity.PurchaseOrderItem{QuoteItemID: item.QuoteItemID, Quantity: item.Quantity})
	}

	created, err := h.documents.CreatePurchaseOrder(c.Request.Context(), order, callerOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// GetPurchaseOrder handles GET /api/purchase-orders/:id
func (h *Handlers) GetPurchaseOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.documents.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// RequestApproval handles POST /api/{quotes|purchase-orders}/:id/approval
func (h *Handlers) RequestApproval(docType entity.DocumentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		instance, err := h.engine.RequestApproval(c.Request.Context(), docType, id, callerOf(c))
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
	}
}

// Approve handles POST /api/{quotes|purchase-orders}/:id/approval/approve
func (h *Handlers) Approve(docType entity.DocumentType) gin.HandlerFunc {
	return h.decide(docType, h.engine.Approve)
}

// Reject handles POST /api/{quotes|purchase-orders}/:id/approval/reject
func (h *Handlers) Reject(docType entity.DocumentType) gin.HandlerFunc {
	return h.decide(docType, h.engine.Reject)
}

type decisionFunc func(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller, opts workflow.DecisionOptions) (*entity.ApprovalInstance, error)

func (h *Handlers) decide(docType entity.DocumentType, fn decisionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		var req DecisionRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, "invalid request body")
				return
			}
		}

		instance, err := fn(c.Request.Context(), docType, id, callerOf(c), workflow.DecisionOptions{
			ExpectedStep: req.ExpectedStep,
			Reason:       strings.TrimSpace(req.Reason),
			Notes:        req.Notes,
		})
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: instance})
	}
}

// CancelApproval handles POST /api/{quotes|purchase-orders}/:id/approval/cancel
func (h *Handlers) CancelApproval(docType entity.DocumentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.engine.CancelApproval(c.Request.Context(), docType, id, callerOf(c)); err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true})
	}
}

// GetApproval handles GET /api/{quotes|purchase-orders}/:id/approval
func (h *Handlers) GetApproval(docType entity.DocumentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		history, err := h.engine.ListInstances(ctx, docType, id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		latest, err := h.engine.GetLatestInstance(ctx, docType, id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if history == nil {
			history = []*entity.ApprovalInstance{}
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: ApprovalView{Latest: latest, History: history}})
	}
}

// SetPurchaseOrderStatus handles PUT /api/purchase-orders/:id/status
func (h *Handlers) SetPurchaseOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	order, err := h.procurement.SetPurchaseOrderStatus(c.Request.Context(), id, procurement.StatusChange{
		Status:    entity.OrderStatus(strings.TrimSpace(req.Status)),
		OrderDate: req.OrderDate,
		Notes:     req.Notes,
	}, callerOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// MarkItemReceived handles POST /api/quote-items/:id/receive
func (h *Handlers) MarkItemReceived(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ReceiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	item, err := h.procurement.MarkItemReceived(c.Request.Context(), id, procurement.Receipt{
		ReceivedDate: req.ReceivedDate,
		Notes:        req.Notes,
	}, callerOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: item})
}

func bindLogFilter(c *gin.Context) (port.LogFilter, bool) {
	var q LogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return port.LogFilter{}, false
	}
	if q.QuoteItemID == 0 && q.PurchaseOrderID == 0 {
		badRequest(c, "quote_item_id or purchase_order_id is required")
		return port.LogFilter{}, false
	}
	if q.Limit < 0 || q.Limit > 1000 {
		q.Limit = 1000
	}
	return port.LogFilter{QuoteItemID: q.QuoteItemID, PurchaseOrderID: q.PurchaseOrderID, Limit: q.Limit}, true
}

// ListProcurementLogs handles GET /api/procurement-logs
func (h *Handlers) ListProcurementLogs(c *gin.Context) {
	filter, ok := bindLogFilter(c)
	if !ok {
		return
	}
	logs, err := h.procurement.ListLogs(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if logs == nil {
		logs = []*entity.ProcurementLog{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: logs})
}

// ExportProcurementLogs handles GET /api/procurement-logs/export
func (h *Handlers) ExportProcurementLogs(c *gin.Context) {
	filter, ok := bindLogFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.procurement.ExportLogs(c.Request.Context(), filter, &buf); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="procurement-logs.xlsx"`)
	c.Data(http.StatusOK, xlsxType, buf.Bytes())
}
