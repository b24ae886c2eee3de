package transfer

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
	"github.com/timberline-erp/timberline/internal/stock"
)

// Handler wires HTTP endpoints for transfers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes under /transfers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/status", h.changeStatus)
	r.Post("/{id}/approvals", h.approve)
}

type itemRequest struct {
	WoodTypeID int64  `json:"wood_type_id" validate:"required,gt=0"`
	Thickness  int    `json:"thickness" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Bucket     string `json:"bucket" validate:"required"`
}

type createRequest struct {
	FromWarehouseID int64         `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64         `json:"to_warehouse_id" validate:"required,gt=0"`
	TransferDate    string        `json:"transfer_date,omitempty"`
	Notes           string        `json:"notes,omitempty" validate:"max=500"`
	ActorID         int64         `json:"actor_id" validate:"required,gt=0"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	params := CreateParams{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Notes:           req.Notes,
		ActorID:         req.ActorID,
	}
	if req.TransferDate != "" {
		date, err := time.Parse("2006-01-02", req.TransferDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer date")
			return
		}
		params.TransferDate = date
	}
	for _, item := range req.Items {
		params.Items = append(params.Items, Item{
			WoodTypeID: item.WoodTypeID,
			Thickness:  item.Thickness,
			Quantity:   item.Quantity,
			Bucket:     stock.Bucket(item.Bucket),
		})
	}

	created, err := h.service.Create(r.Context(), params)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("fromWarehouseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from warehouse id")
			return
		}
		filter.FromWarehouseID = id
	}
	if v := r.URL.Query().Get("toWarehouseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to warehouse id")
			return
		}
		filter.ToWarehouseID = id
	}
	transfers, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	tr, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

type statusRequest struct {
	Status         string `json:"status" validate:"required,oneof=IN_TRANSIT COMPLETED CANCELLED"`
	Notes          string `json:"notes,omitempty" validate:"max=500"`
	ConditionAfter string `json:"condition_after,omitempty" validate:"max=500"`
	ActorID        int64  `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	tr, err := h.service.ChangeStatus(r.Context(), id, Status(req.Status), req.ActorID, req.Notes, req.ConditionAfter)
	if err != nil {
		h.logger.Error("change transfer status", slog.Int64("id", id),
			slog.String("target", req.Status), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

type approvalRequest struct {
	Action  string `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Note    string `json:"note,omitempty" validate:"max=500"`
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	var req approvalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Approve(r.Context(), id, req.ActorID, shared.ApprovalAction(req.Action), req.Note); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrApprovalRequired):
		httpx.Problem(w, http.StatusConflict, "Approval Required", err.Error())
	case errors.Is(err, ErrSameWarehouse), errors.Is(err, ErrEmptyItems), errors.Is(err, ErrInvalidItem):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, stock.ErrUnknownReference):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
