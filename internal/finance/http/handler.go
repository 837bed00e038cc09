package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/finance"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/platform/httpx"
	"github.com/moneta-ledger/moneta/internal/stats"
)

// Service is the subset of finance.Manager the handler drives.
type Service interface {
	AddProduct(ctx context.Context, in finance.NewProduct) *async.Future[finance.Response]
	Product(ctx context.Context, id int64) *async.Future[*catalog.Product]
	ProductByName(ctx context.Context, name string) *async.Future[*catalog.Product]
	RecordSale(ctx context.Context, productName string, quantity int, marketplace ledger.Marketplace, comment string) *async.Future[finance.Response]
	RecordPurchase(ctx context.Context, productName string, quantity int, includeInExpenses bool, comment string) *async.Future[finance.Response]
	RecordExpense(ctx context.Context, category ledger.ExpenseCategory, description string, amount float64, comment string) *async.Future[finance.Response]
	MonthlyStats(ctx context.Context, month stats.Month, year int) *async.Future[stats.Stats]
	YearlyStats(ctx context.Context, year int) *async.Future[[]stats.Stats]
	YearSummary(ctx context.Context, year int) *async.Future[stats.Stats]
}

// Exporter runs one incremental export.
type Exporter interface {
	Run(ctx context.Context) finance.Response
}

// Handler wires the ledger JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	exporter  Exporter
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service Service, exporter Exporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		exporter:  exporter,
		validator: validator.New(),
		rateLimit: httprate.LimitByIP(6, time.Minute),
	}
}

// MountRoutes registers the ledger routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleAddProduct)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Get("/products/by-name/{name}", h.handleGetProductByName)
	r.Post("/sales", h.handleRecordSale)
	r.Post("/purchases", h.handleRecordPurchase)
	r.Post("/expenses", h.handleRecordExpense)
	r.Get("/stats/monthly", h.handleMonthlyStats)
	r.Get("/stats/yearly", h.handleYearlyStats)
	r.Get("/stats/summary", h.handleYearSummary)
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/export", h.handleExport)
	})
}

type productRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Category    string  `json:"category" validate:"required"`
	CostPrice   float64 `json:"cost_price" validate:"gte=0"`
	RetailPrice float64 `json:"retail_price" validate:"gte=0"`
	Unit        string  `json:"unit"`
	Supplier    string  `json:"supplier" validate:"max=255"`
	Minimum     int     `json:"minimum" validate:"gte=0"`
	Status      string  `json:"status"`
}

type saleRequest struct {
	Product     string `json:"product" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	Marketplace string `json:"marketplace" validate:"required"`
	Comment     string `json:"comment" validate:"max=1000"`
}

type purchaseRequest struct {
	Product           string `json:"product" validate:"required"`
	Quantity          int    `json:"quantity" validate:"gt=0"`
	IncludeInExpenses bool   `json:"include_in_expenses"`
	Comment           string `json:"comment" validate:"max=1000"`
}

type expenseRequest struct {
	Category    string  `json:"category" validate:"required"`
	Description string  `json:"description" validate:"required,max=255"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Comment     string  `json:"comment" validate:"max=1000"`
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	category, ok := catalog.ParseCategory(req.Category)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: unknown category %q", httpx.ErrValidation, req.Category))
		return
	}
	unit := catalog.UnitPiece
	if req.Unit != "" {
		if unit, ok = catalog.ParseUnit(req.Unit); !ok {
			httpx.RespondError(w, fmt.Errorf("%w: unknown unit %q", httpx.ErrValidation, req.Unit))
			return
		}
	}
	status := catalog.StatusActive
	if req.Status != "" {
		if status, ok = catalog.ParseStatus(req.Status); !ok {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, req.Status))
			return
		}
	}
	h.respond(w, r, h.service.AddProduct(r.Context(), finance.NewProduct{
		Name:        req.Name,
		Category:    category,
		CostPrice:   req.CostPrice,
		RetailPrice: req.RetailPrice,
		Unit:        unit,
		Supplier:    req.Supplier,
		Minimum:     req.Minimum,
		Status:      status,
	}))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrValidation))
		return
	}
	h.writeProduct(w, r, h.service.Product(r.Context(), id))
}

func (h *Handler) handleGetProductByName(w http.ResponseWriter, r *http.Request) {
	h.writeProduct(w, r, h.service.ProductByName(r.Context(), chi.URLParam(r, "name")))
}

func (h *Handler) writeProduct(w http.ResponseWriter, r *http.Request, f *async.Future[*catalog.Product]) {
	product, err := f.Await(r.Context())
	if err != nil {
		h.fail(w, "load product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product.Snapshot())
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	marketplace, ok := ledger.ParseMarketplace(req.Marketplace)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: unknown marketplace %q", httpx.ErrValidation, req.Marketplace))
		return
	}
	h.respond(w, r, h.service.RecordSale(r.Context(), req.Product, req.Quantity, marketplace, req.Comment))
}

func (h *Handler) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, h.service.RecordPurchase(r.Context(), req.Product, req.Quantity, req.IncludeInExpenses, req.Comment))
}

func (h *Handler) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	category, ok := ledger.ParseExpenseCategory(req.Category)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: unknown expense category %q", httpx.ErrValidation, req.Category))
		return
	}
	h.respond(w, r, h.service.RecordExpense(r.Context(), category, req.Description, req.Amount, req.Comment))
}

func (h *Handler) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	month, err := stats.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	writeStats(h, w, r, h.service.MonthlyStats(r.Context(), month, year))
}

func (h *Handler) handleYearlyStats(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	writeStats(h, w, r, h.service.YearlyStats(r.Context(), year))
}

func (h *Handler) handleYearSummary(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	writeStats(h, w, r, h.service.YearSummary(r.Context(), year))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Disabled", "")
		return
	}
	h.writeResponse(w, h.exporter.Run(r.Context()))
}

func writeStats[T any](h *Handler, w http.ResponseWriter, r *http.Request, f *async.Future[T]) {
	result, err := f.Await(r.Context())
	if err != nil {
		if errors.Is(err, stats.ErrInvalidMonth) {
			err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		h.fail(w, "compute stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// parseYear reads the optional year parameter; absent means the current year.
func parseYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid year %q", httpx.ErrValidation, raw))
		return 0, false
	}
	return year, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, f *async.Future[finance.Response]) {
	resp, err := f.Await(r.Context())
	if err != nil {
		h.fail(w, "await operation", err)
		return
	}
	h.writeResponse(w, resp)
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp finance.Response) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, resp)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
		return
	}
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
