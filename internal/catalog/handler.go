package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler exposes catalog HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/product", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/unit", func(r chi.Router) {
		r.Get("/", h.listUnits)
		r.Post("/", h.createUnit)
	})
	r.Route("/supplier", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.Post("/", h.createSupplier)
	})
	r.Get("/price-history/{productID}", h.listPriceHistory)
	r.Post("/price-history", h.createPriceHistory)
}

type productRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name" validate:"required"`
	UnitID      int64           `json:"unit_id" validate:"required"`
	InputPrice  decimal.Decimal `json:"input_price"`
	OutputPrice decimal.Decimal `json:"output_price"`
	Note        string          `json:"note"`
}

type productResponse struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	UnitID      int64           `json:"unit_id"`
	InputPrice  decimal.Decimal `json:"input_price"`
	OutputPrice decimal.Decimal `json:"output_price"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Code:        p.Code,
		Name:        p.Name,
		UnitID:      p.UnitID,
		InputPrice:  p.InputPrice,
		OutputPrice: p.OutputPrice,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("search"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid id", err.Error())
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	p, err := h.service.CreateProduct(r.Context(), Product{
		Code:        req.Code,
		Name:        req.Name,
		UnitID:      req.UnitID,
		InputPrice:  req.InputPrice,
		OutputPrice: req.OutputPrice,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("product created", "product_id", p.ID, "name", p.Name)
	httpx.JSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid id", err.Error())
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	var userName string
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		userName = sess.DisplayName
	}
	p, err := h.service.UpdateProduct(r.Context(), Product{
		ID:          id,
		Code:        req.Code,
		Name:        req.Name,
		UnitID:      req.UnitID,
		InputPrice:  req.InputPrice,
		OutputPrice: req.OutputPrice,
	}, userName, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid id", err.Error())
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type unitRequest struct {
	Name  string  `json:"name" validate:"required"`
	Ratio float64 `json:"ratio" validate:"required,gt=0"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListUnits(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, units)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	u, err := h.service.CreateUnit(r.Context(), Unit{Name: req.Name, Ratio: req.Ratio})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

type supplierRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	s, err := h.service.CreateSupplier(r.Context(), Supplier{Name: req.Name, Phone: req.Phone, Address: req.Address})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) listPriceHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid product id", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.service.ListPriceHistory(r.Context(), productID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

type priceHistoryRequest struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	OldInputPrice  decimal.Decimal `json:"old_input_price"`
	NewInputPrice  decimal.Decimal `json:"new_input_price"`
	OldOutputPrice decimal.Decimal `json:"old_output_price"`
	NewOutputPrice decimal.Decimal `json:"new_output_price"`
	Note           string          `json:"note"`
}

func (h *Handler) createPriceHistory(w http.ResponseWriter, r *http.Request) {
	var req priceHistoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ph := PriceHistory{
		ProductID:      req.ProductID,
		OldInputPrice:  req.OldInputPrice,
		NewInputPrice:  req.NewInputPrice,
		OldOutputPrice: req.OldOutputPrice,
		NewOutputPrice: req.NewOutputPrice,
		Note:           req.Note,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		ph.UserName = sess.DisplayName
	}
	created, err := h.service.AppendPriceHistory(r.Context(), ph)
	if err != nil {
		h.logger.Error("append price history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}
