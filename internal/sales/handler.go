package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	reports  singleflight.Group
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/order", h.list)
	r.Get("/order/{id}", h.get)
	r.Post("/order", h.checkout)
	r.Post("/order/draft", h.saveDraft)
	r.Get("/report/revenue", h.revenue)
}

type checkoutLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	BatchNumber string  `json:"batch_number"`
}

type checkoutRequest struct {
	CustomerName    string                `json:"customer_name"`
	PaymentMethod   string                `json:"payment_method"`
	CustomerPayment decimal.Decimal       `json:"customer_payment"`
	Note            string                `json:"note"`
	IdempotencyKey  string                `json:"idempotency_key"`
	Lines           []checkoutLineRequest `json:"items" validate:"required,min=1,dive"`
}

type itemResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	BatchID    int64           `json:"batch_id,omitempty"`
	Quantity   float64         `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Discounted bool            `json:"discounted"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

type orderResponse struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	UserName        string          `json:"user_name"`
	CustomerName    string          `json:"customer_name,omitempty"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	TotalFormatted  string          `json:"total_formatted"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   bool            `json:"payment_status"`
	CustomerPayment decimal.Decimal `json:"customer_payment"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []itemResponse  `json:"items"`
}

func toOrderResponse(order Order) orderResponse {
	out := orderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		UserName:        order.UserName,
		CustomerName:    order.CustomerName,
		Status:          string(order.Status),
		Total:           order.Total,
		TotalFormatted:  shared.FormatMoney(order.Total),
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		CustomerPayment: order.CustomerPayment,
		Note:            order.Note,
		CreatedAt:       order.CreatedAt,
		Items:           make([]itemResponse, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		out.Items = append(out.Items, itemResponse{
			ID:         it.ID,
			ProductID:  it.ProductID,
			BatchID:    it.BatchID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			Discounted: it.Discounted,
			LineTotal:  it.LineTotal,
		})
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		filter.Status = Status(v)
	}
	if v := q.Get("date"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		filter.Date = date
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCheckout(w, r)
	if !ok {
		return
	}
	order, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.logger.Error("checkout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("order completed",
		slog.Int64("order_id", order.ID),
		slog.String("total", order.Total.String()))
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCheckout(w, r)
	if !ok {
		return
	}
	order, err := h.service.SaveDraft(r.Context(), input)
	if err != nil {
		h.logger.Error("save draft", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) decodeCheckout(w http.ResponseWriter, r *http.Request) (CheckoutInput, bool) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return CheckoutInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CheckoutInput{}, false
	}
	input := CheckoutInput{
		CustomerName:    req.CustomerName,
		PaymentMethod:   req.PaymentMethod,
		CustomerPayment: req.CustomerPayment,
		Note:            req.Note,
		IdempotencyKey:  req.IdempotencyKey,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		input.UserID = sess.AccountID
		input.UserName = sess.DisplayName
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, CheckoutLine{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			BatchNumber: l.BatchNumber,
		})
	}
	return input, true
}

func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	// Coalesce concurrent identical range queries; dashboards tend to
	// fire the same request from several widgets at once.
	key := q.Get("from") + ".." + q.Get("to")
	result, err, _ := h.reports.Do(key, func() (any, error) {
		return h.service.Revenue(r.Context(), from, to)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	points := result.([]RevenuePoint)
	type point struct {
		Date            string          `json:"date"`
		Orders          int             `json:"orders"`
		Revenue         decimal.Decimal `json:"revenue"`
		Lines           int             `json:"lines"`
		DiscountedLines int             `json:"discounted_lines"`
	}
	out := make([]point, 0, len(points))
	for _, p := range points {
		out = append(out, point{
			Date:            p.Date.Format("2006-01-02"),
			Orders:          p.Orders,
			Revenue:         p.Revenue,
			Lines:           p.Lines,
			DiscountedLines: p.DiscountedLines,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
