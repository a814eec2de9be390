package ledger

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

// Handler wires HTTP endpoints for the batch ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/product-detail", h.list)
	r.Get("/product-detail/{id}", h.get)
	r.Get("/product-detail/scan/{number}", h.scan)
	r.Post("/product-detail", h.create)
	r.Patch("/product-detail/{id}", h.patch)
}

type createBatchRequest struct {
	ProductID         int64           `json:"product_id" validate:"required,gt=0"`
	UnitID            int64           `json:"unit_id"`
	Quantity          float64         `json:"quantity" validate:"required,gt=0"`
	InputPrice        decimal.Decimal `json:"input_price" validate:"required"`
	DateOfManufacture time.Time       `json:"date_of_manufacture" validate:"required"`
	ExpiryDate        time.Time       `json:"expiry_date" validate:"required"`
	BatchNumber       string          `json:"batch_number"`
	Note              string          `json:"note"`
}

type patchBatchRequest struct {
	OutputQuantity *float64 `json:"output_quantity" validate:"required"`
	UserID         int64    `json:"user_id"`
	UserName       string   `json:"user_name"`
}

type batchResponse struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	UnitID            int64           `json:"unit_id,omitempty"`
	BatchNumber       string          `json:"batch_number"`
	InputQuantity     float64         `json:"input_quantity"`
	OutputQuantity    float64         `json:"output_quantity"`
	Inventory         float64         `json:"inventory"`
	DateOfManufacture *time.Time      `json:"date_of_manufacture,omitempty"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	InputPrice        decimal.Decimal `json:"input_price"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		ID:                b.ID,
		ProductID:         b.ProductID,
		UnitID:            b.UnitID,
		BatchNumber:       b.BatchNumber,
		InputQuantity:     b.InputQuantity,
		OutputQuantity:    b.OutputQuantity,
		Inventory:         b.Available(),
		DateOfManufacture: b.DateOfManufacture,
		ExpiryDate:        b.ExpiryDate,
		InputPrice:        b.InputPrice,
		Note:              b.Note,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	q := r.URL.Query()
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be numeric")
			return
		}
		filter.ProductID = id
	}
	filter.BatchNumber = q.Get("batch_number")
	filter.OnlyInStock = q.Get("in_stock") == "true"

	batches, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sess := shared.SessionFromContext(r.Context())
	input := CreateBatchInput{
		ProductID:         req.ProductID,
		UnitID:            req.UnitID,
		Quantity:          req.Quantity,
		InputPrice:        req.InputPrice,
		DateOfManufacture: req.DateOfManufacture,
		ExpiryDate:        req.ExpiryDate,
		BatchNumber:       req.BatchNumber,
		Note:              req.Note,
	}
	if sess != nil {
		input.ActorID = sess.AccountID
	}
	batch, err := h.service.CreateBatch(r.Context(), input)
	if err != nil {
		h.logger.Error("create batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	var req patchBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID := req.UserID
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		actorID = sess.AccountID
	}
	batch, err := h.service.SetOutput(r.Context(), id, *req.OutputQuantity, actorID)
	if err != nil {
		h.logger.Error("patch batch output", slog.Any("error", err), slog.Int64("batch_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}
