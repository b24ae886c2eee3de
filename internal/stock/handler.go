package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/timberline-erp/timberline/internal/platform/httpx"
	"github.com/timberline-erp/timberline/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger, validate: validator.New()}
}

// MountRoutes registers stock routes under /stock.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidated", h.consolidated)
	r.Get("/alerts", h.alerts)
	r.Get("/movements/{woodTypeID}", h.movements)
	r.Post("/adjustments", h.adjust)
	r.Post("/receipts", h.receipt)
	r.Put("/minimum-level", h.minimumLevel)
}

// WarehouseStock handles GET /warehouses/{id}/stock.
func (h *Handler) WarehouseStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	records, err := h.ledger.WarehouseStock(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": records})
}

func (h *Handler) consolidated(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Consolidate(r.Context())
	if err != nil {
		h.logger.Error("consolidate stock", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.ledger.EvaluateLowStock(r.Context())
	if err != nil {
		h.logger.Error("evaluate low stock", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	woodTypeID, err := strconv.ParseInt(chi.URLParam(r, "woodTypeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid wood type id")
		return
	}
	filter := MovementFilter{WoodTypeID: woodTypeID}

	q := r.URL.Query()
	if v := q.Get("warehouseId"); v != "" {
		if filter.WarehouseID, err = strconv.ParseInt(v, 10, 64); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
			return
		}
	}
	if v := q.Get("thickness"); v != "" {
		if filter.Thickness, err = strconv.Atoi(v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid thickness")
			return
		}
	}
	if v := q.Get("movementType"); v != "" {
		filter.Type = MovementType(v)
	}
	if v := q.Get("startDate"); v != "" {
		if filter.From, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid start date")
			return
		}
	}
	if v := q.Get("endDate"); v != "" {
		end, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid end date")
			return
		}
		filter.To = end.Add(24*time.Hour - time.Nanosecond)
	}
	// days is shorthand for a trailing window; explicit dates win.
	if v := q.Get("days"); v != "" && filter.From.IsZero() && filter.To.IsZero() {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid days")
			return
		}
		now := time.Now().UTC()
		filter.From = now.AddDate(0, 0, -days)
		filter.To = now
	}

	movements, err := h.ledger.QueryMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type adjustmentRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	WoodTypeID  int64  `json:"wood_type_id" validate:"required,gt=0"`
	Thickness   int    `json:"thickness" validate:"required,gt=0"`
	Bucket      string `json:"bucket" validate:"required"`
	Delta       int64  `json:"delta" validate:"required"`
	Reason      string `json:"reason" validate:"required,min=5,max=500"`
	ActorID     int64  `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	adjustment, err := h.ledger.AdjustStock(r.Context(), AdjustmentParams{
		WarehouseID: req.WarehouseID,
		WoodTypeID:  req.WoodTypeID,
		Thickness:   req.Thickness,
		Bucket:      Bucket(req.Bucket),
		Delta:       req.Delta,
		Reason:      req.Reason,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustment)
}

type receiptRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	WoodTypeID  int64  `json:"wood_type_id" validate:"required,gt=0"`
	Thickness   int    `json:"thickness" validate:"required,gt=0"`
	Bucket      string `json:"bucket,omitempty"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Reference   string `json:"reference" validate:"required,max=100"`
	Note        string `json:"note,omitempty"`
	ActorID     int64  `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	movement, err := h.ledger.SyncReceipt(r.Context(), ReceiptParams{
		WarehouseID: req.WarehouseID,
		WoodTypeID:  req.WoodTypeID,
		Thickness:   req.Thickness,
		Bucket:      Bucket(req.Bucket),
		Quantity:    req.Quantity,
		Reference:   req.Reference,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.logger.Error("sync receipt", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

type minimumLevelRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	WoodTypeID  int64  `json:"wood_type_id" validate:"required,gt=0"`
	Thickness   int    `json:"thickness" validate:"required,gt=0"`
	Level       *int64 `json:"level" validate:"omitempty,gte=0"`
}

func (h *Handler) minimumLevel(w http.ResponseWriter, r *http.Request) {
	var req minimumLevelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.ledger.SetMinimumLevel(r.Context(), req.WarehouseID, req.WoodTypeID, req.Thickness, req.Level); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrUnknownReference):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	case errors.Is(err, ErrInvalidBucket), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidMovementType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
