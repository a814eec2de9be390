package orderform

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for order forms.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs order-form handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order-form routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/order-form", h.list)
	r.Get("/order-form/{id}", h.get)
	r.Post("/order-form", h.create)
	r.Patch("/order-form/{id}", h.patch)
	r.Delete("/order-form/{id}", h.delete)
}

type lineRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	UnitID     int64           `json:"unit_id" validate:"required,gt=0"`
	Quantity   float64         `json:"quantity" validate:"required,gt=0"`
	InputPrice decimal.Decimal `json:"input_price" validate:"required"`
}

type createFormRequest struct {
	SupplierID int64         `json:"supplier_id" validate:"required,gt=0"`
	Lines      []lineRequest `json:"product_details" validate:"required,min=1,dive"`
}

type patchFormRequest struct {
	SupplierID *int64         `json:"supplier_id,omitempty"`
	Lines      *[]lineRequest `json:"product_details,omitempty" validate:"omitempty,min=1,dive"`
	Status     *string        `json:"status,omitempty"`
}

type lineResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	UnitID     int64           `json:"unit_id"`
	Quantity   float64         `json:"quantity"`
	InputPrice decimal.Decimal `json:"input_price"`
}

type formResponse struct {
	ID         int64          `json:"id"`
	SupplierID int64          `json:"supplier_id"`
	Status     Status         `json:"status"`
	Lines      []lineResponse `json:"product_details"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toFormResponse(form OrderForm) formResponse {
	resp := formResponse{
		ID:         form.ID,
		SupplierID: form.SupplierID,
		Status:     form.Status,
		Lines:      make([]lineResponse, 0, len(form.Lines)),
		CreatedAt:  form.CreatedAt,
		UpdatedAt:  form.UpdatedAt,
	}
	for _, line := range form.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:         line.ID,
			ProductID:  line.ProductID,
			UnitID:     line.UnitID,
			Quantity:   line.Quantity,
			InputPrice: line.InputPrice,
		})
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if v := q.Get("supplier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "supplier_id must be numeric")
			return
		}
		filter.SupplierID = id
	}
	if v := q.Get("date"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		filter.Date = date
	}
	filter.Unconsumed = q.Get("unconsumed") == "true"

	forms, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list order forms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]formResponse, 0, len(forms))
	for _, form := range forms {
		out = append(out, toFormResponse(form))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order form id")
		return
	}
	form, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFormResponse(form))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createFormRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{SupplierID: req.SupplierID, ActorID: actorID(r)}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			ProductID:  line.ProductID,
			UnitID:     line.UnitID,
			Quantity:   line.Quantity,
			InputPrice: line.InputPrice,
		})
	}
	form, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create order form", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFormResponse(form))
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order form id")
		return
	}
	var req patchFormRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := actorID(r)
	if req.SupplierID != nil {
		if err := h.service.UpdateSupplier(r.Context(), id, *req.SupplierID, actor); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Lines != nil {
		lines := make([]LineInput, 0, len(*req.Lines))
		for _, line := range *req.Lines {
			lines = append(lines, LineInput{
				ProductID:  line.ProductID,
				UnitID:     line.UnitID,
				Quantity:   line.Quantity,
				InputPrice: line.InputPrice,
			})
		}
		if err := h.service.ReplaceLines(r.Context(), id, lines, actor); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Status != nil {
		if Status(*req.Status) != StatusCompleted {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status may only move to COMPLETED")
			return
		}
		if err := h.service.MarkCompleted(r.Context(), id, actor); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	form, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFormResponse(form))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order form id")
		return
	}
	if err := h.service.Delete(r.Context(), id, actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func actorID(r *http.Request) int64 {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.AccountID
	}
	return 0
}
