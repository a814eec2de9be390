package exchange

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

// Handler wires HTTP endpoints for return exchanges.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs exchange handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers exchange routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/return-exchange", h.list)
	r.Get("/return-exchange/{id}", h.get)
	r.Get("/return-exchange/open/{orderID}", h.open)
	r.Post("/return-exchange/process", h.process)
}

type processRequest struct {
	OrderID     int64   `json:"order_id" validate:"required,gt=0"`
	OrderItemID int64   `json:"order_item_id" validate:"required,gt=0"`
	NewBatchID  int64   `json:"new_batch_id" validate:"required,gt=0"`
	NewQuantity float64 `json:"new_quantity" validate:"required,gt=0"`
	Note        string  `json:"note"`
}

type exchangeResponse struct {
	ID                 int64           `json:"id"`
	OrderID            int64           `json:"order_id"`
	OrderItemID        int64           `json:"order_item_id"`
	Status             string          `json:"status"`
	OldProductID       int64           `json:"old_product_id"`
	OldQuantity        float64         `json:"old_quantity"`
	NewProductID       int64           `json:"new_product_id"`
	NewBatchID         int64           `json:"new_batch_id"`
	NewQuantity        float64         `json:"new_quantity"`
	ExchangeValue      decimal.Decimal `json:"exchange_value"`
	NewTotal           decimal.Decimal `json:"new_total"`
	AdditionalPayment  decimal.Decimal `json:"additional_payment"`
	PaymentFormatted   string          `json:"additional_payment_formatted"`
	UserName           string          `json:"user_name"`
	Note               string          `json:"note,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toExchangeResponse(ex Exchange) exchangeResponse {
	return exchangeResponse{
		ID:                ex.ID,
		OrderID:           ex.OrderID,
		OrderItemID:       ex.OrderItemID,
		Status:            string(ex.Status),
		OldProductID:      ex.OldProductID,
		OldQuantity:       ex.OldQuantity,
		NewProductID:      ex.NewProductID,
		NewBatchID:        ex.NewBatchID,
		NewQuantity:       ex.NewQuantity,
		ExchangeValue:     ex.ExchangeValue,
		NewTotal:          ex.NewTotal,
		AdditionalPayment: ex.AdditionalPayment,
		PaymentFormatted:  shared.FormatMoney(ex.AdditionalPayment),
		UserName:          ex.UserName,
		Note:              ex.Note,
		CreatedAt:         ex.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	exchanges, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list exchanges", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]exchangeResponse, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, toExchangeResponse(ex))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid exchange id")
		return
	}
	ex, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExchangeResponse(ex))
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	quote, err := h.service.Open(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type quoteItem struct {
		OrderItemID   int64           `json:"order_item_id"`
		ProductID     int64           `json:"product_id"`
		BatchID       int64           `json:"batch_id,omitempty"`
		Quantity      float64         `json:"quantity"`
		ExchangeValue decimal.Decimal `json:"exchange_value"`
	}
	out := struct {
		OrderID   int64       `json:"order_id"`
		SoldAt    time.Time   `json:"sold_at"`
		ExpiresAt time.Time   `json:"expires_at"`
		Items     []quoteItem `json:"items"`
	}{OrderID: quote.OrderID, SoldAt: quote.SoldAt, ExpiresAt: quote.ExpiresAt}
	for _, it := range quote.Items {
		out.Items = append(out.Items, quoteItem{
			OrderItemID:   it.OrderItemID,
			ProductID:     it.ProductID,
			BatchID:       it.BatchID,
			Quantity:      it.Quantity,
			ExchangeValue: it.ExchangeValue,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ProcessInput{
		OrderID:     req.OrderID,
		OrderItemID: req.OrderItemID,
		NewBatchID:  req.NewBatchID,
		NewQuantity: req.NewQuantity,
		Note:        req.Note,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		input.UserID = sess.AccountID
		input.UserName = sess.DisplayName
	}
	ex, err := h.service.Process(r.Context(), input)
	if err != nil {
		h.logger.Error("process exchange", slog.Any("error", err), slog.Int64("order_id", req.OrderID))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("exchange processed",
		slog.Int64("exchange_id", ex.ID),
		slog.String("additional_payment", ex.AdditionalPayment.String()))
	httpx.JSON(w, http.StatusCreated, toExchangeResponse(ex))
}
