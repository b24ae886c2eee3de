package drying

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/timberline-erp/timberline/internal/platform/httpx"
	"github.com/timberline-erp/timberline/internal/stock"
)

// Handler wires HTTP endpoints for drying processes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the drying handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers drying routes under /factory/drying-processes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.start)
	r.Get("/{id}", h.get)
	r.Post("/{id}/readings", h.addReading)
	r.Post("/{id}/complete", h.complete)
	r.Get("/{id}/estimate", h.estimate)
}

type startRequest struct {
	SourceWarehouseID int64   `json:"source_warehouse_id" validate:"required,gt=0"`
	WoodTypeID        int64   `json:"wood_type_id" validate:"required,gt=0"`
	Thickness         int     `json:"thickness" validate:"required,gt=0"`
	Quantity          int64   `json:"quantity" validate:"required,gt=0"`
	StartTime         string  `json:"start_time,omitempty"`
	StartingHumidity  float64 `json:"starting_humidity" validate:"required,gt=0,lte=100"`
	ActorID           int64   `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	params := StartParams{
		SourceWarehouseID: req.SourceWarehouseID,
		WoodTypeID:        req.WoodTypeID,
		Thickness:         req.Thickness,
		Quantity:          req.Quantity,
		StartingHumidity:  req.StartingHumidity,
		ActorID:           req.ActorID,
	}
	if req.StartTime != "" {
		startTime, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid start time")
			return
		}
		params.StartTime = startTime
	}
	created, err := h.service.Start(r.Context(), params)
	if err != nil {
		h.logger.Error("start drying batch", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	processes, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drying_processes": processes})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.processID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type readingRequest struct {
	ReadingTime string  `json:"reading_time,omitempty"`
	Humidity    float64 `json:"humidity" validate:"required,gt=0,lte=100"`
}

func (h *Handler) addReading(w http.ResponseWriter, r *http.Request) {
	id, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req readingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	var readingTime time.Time
	if req.ReadingTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.ReadingTime)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reading time")
			return
		}
		readingTime = parsed
	}
	reading, err := h.service.AddReading(r.Context(), id, readingTime, req.Humidity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reading)
}

type completeRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.processID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	p, err := h.service.Complete(r.Context(), id, req.ActorID)
	if err != nil {
		h.logger.Error("complete drying batch", slog.Int64("id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.processID(w, r)
	if !ok {
		return
	}
	estimate, err := h.service.Estimate(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, estimate)
}

func (h *Handler) processID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid process id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrInvalidReading), errors.Is(err, stock.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, stock.ErrUnknownReference):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
