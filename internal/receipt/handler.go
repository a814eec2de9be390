package receipt

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

// Handler wires HTTP endpoints for warehouse receipts.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs receipt handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouse-receipt", h.list)
	r.Get("/warehouse-receipt/{id}", h.get)
	r.Get("/warehouse-receipt/by-form/{formID}", h.getByForm)
	r.Post("/warehouse-receipt", h.submit)
}

type submitLineRequest struct {
	ProductID         int64           `json:"product_id" validate:"required,gt=0"`
	Quantity          float64         `json:"quantity" validate:"required,gte=1"`
	InputPrice        decimal.Decimal `json:"input_price" validate:"required"`
	BatchNumber       string          `json:"batch_number"`
	DateOfManufacture time.Time       `json:"date_of_manufacture" validate:"required"`
	ExpiryDate        time.Time       `json:"expiry_date" validate:"required"`
	Note              string          `json:"note"`
}

type submitRequest struct {
	SupplierReceiptID int64               `json:"supplier_receipt_id" validate:"required,gt=0"`
	Note              string              `json:"note"`
	IdempotencyKey    string              `json:"idempotency_key"`
	Lines             []submitLineRequest `json:"product_details" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	UnitID            int64           `json:"unit_id"`
	BatchID           int64           `json:"batch_id"`
	BatchNumber       string          `json:"batch_number"`
	Quantity          float64         `json:"quantity"`
	InputPrice        decimal.Decimal `json:"input_price"`
	DateOfManufacture time.Time       `json:"date_of_manufacture"`
	ExpiryDate        time.Time       `json:"expiry_date"`
	Note              string          `json:"note,omitempty"`
}

type receiptResponse struct {
	ID                int64           `json:"id"`
	SupplierReceiptID int64           `json:"supplier_receipt_id"`
	SupplierID        int64           `json:"supplier_id"`
	UserID            int64           `json:"user_id"`
	UserName          string          `json:"user_name"`
	Total             decimal.Decimal `json:"total"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Lines             []lineResponse  `json:"product_details"`
}

func toReceiptResponse(rc Receipt) receiptResponse {
	out := receiptResponse{
		ID:                rc.ID,
		SupplierReceiptID: rc.OrderFormID,
		SupplierID:        rc.SupplierID,
		UserID:            rc.UserID,
		UserName:          rc.UserName,
		Total:             rc.Total,
		Note:              rc.Note,
		CreatedAt:         rc.CreatedAt,
		Lines:             make([]lineResponse, 0, len(rc.Lines)),
	}
	for _, l := range rc.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:                l.ID,
			ProductID:         l.ProductID,
			UnitID:            l.UnitID,
			BatchID:           l.BatchID,
			BatchNumber:       l.BatchNumber,
			Quantity:          l.Quantity,
			InputPrice:        l.InputPrice,
			DateOfManufacture: l.DateOfManufacture,
			ExpiryDate:        l.ExpiryDate,
			Note:              l.Note,
		})
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	q := r.URL.Query()
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

	receipts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptResponse(rc))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid receipt id")
		return
	}
	rc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(rc))
}

func (h *Handler) getByForm(w http.ResponseWriter, r *http.Request) {
	formID, err := strconv.ParseInt(chi.URLParam(r, "formID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	rc, err := h.service.GetByForm(r.Context(), formID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(rc))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := SubmitInput{
		OrderFormID:    req.SupplierReceiptID,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		input.UserID = sess.AccountID
		input.UserName = sess.DisplayName
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, SubmitLine{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			InputPrice:        l.InputPrice,
			BatchNumber:       l.BatchNumber,
			DateOfManufacture: l.DateOfManufacture,
			ExpiryDate:        l.ExpiryDate,
			Note:              l.Note,
		})
	}

	rc, err := h.service.Submit(r.Context(), input)
	if err != nil {
		h.logger.Error("submit receipt", slog.Any("error", err), slog.Int64("order_form_id", req.SupplierReceiptID))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("warehouse receipt created",
		slog.Int64("receipt_id", rc.ID),
		slog.Int64("order_form_id", rc.OrderFormID),
		slog.String("total", rc.Total.String()))
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(rc))
}
