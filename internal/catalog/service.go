package catalog

import (
	"context"
	"time"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, search string, limit int) ([]Product, error)

	InsertUnit(ctx context.Context, u Unit) (int64, error)
	GetUnit(ctx context.Context, id int64) (Unit, error)
	ListUnits(ctx context.Context) ([]Unit, error)

	InsertSupplier(ctx context.Context, s Supplier) (int64, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	InsertPriceHistory(ctx context.Context, ph PriceHistory) (int64, error)
	ListPriceHistory(ctx context.Context, productID int64, limit int) ([]PriceHistory, error)
}

// Service exposes catalog operations.
type Service struct {
	repo RepositoryPort
}

// NewService constructs catalog service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateProduct validates and stores a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Name == "" {
		return Product{}, ErrNameRequired
	}
	if p.InputPrice.Sign() <= 0 || p.OutputPrice.Sign() <= 0 {
		return Product{}, ErrBadPrice
	}
	id, err := s.repo.InsertProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	return p, nil
}

// UpdateProduct rewrites product fields and appends a price-history entry
// when either price moved.
func (s *Service) UpdateProduct(ctx context.Context, p Product, userName, note string) (Product, error) {
	if p.Name == "" {
		return Product{}, ErrNameRequired
	}
	if p.InputPrice.Sign() <= 0 || p.OutputPrice.Sign() <= 0 {
		return Product{}, ErrBadPrice
	}
	current, err := s.repo.GetProduct(ctx, p.ID)
	if err != nil {
		return Product{}, err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	if !current.InputPrice.Equal(p.InputPrice) || !current.OutputPrice.Equal(p.OutputPrice) {
		_, err = s.repo.InsertPriceHistory(ctx, PriceHistory{
			ProductID:      p.ID,
			OldInputPrice:  current.InputPrice,
			NewInputPrice:  p.InputPrice,
			OldOutputPrice: current.OutputPrice,
			NewOutputPrice: p.OutputPrice,
			ChangedAt:      time.Now(),
			UserName:       userName,
			Note:           note,
		})
		if err != nil {
			return Product{}, err
		}
	}
	return p, nil
}

// DeleteProduct removes a product from the catalog. Ledger batches for it
// remain untouched as history.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns products, optionally name-searched.
func (s *Service) ListProducts(ctx context.Context, search string, limit int) ([]Product, error) {
	return s.repo.ListProducts(ctx, search, limit)
}

// CreateUnit stores a unit after ratio validation.
func (s *Service) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	if u.Name == "" {
		return Unit{}, ErrNameRequired
	}
	if u.Ratio <= 0 {
		return Unit{}, ErrBadRatio
	}
	id, err := s.repo.InsertUnit(ctx, u)
	if err != nil {
		return Unit{}, err
	}
	u.ID = id
	return u, nil
}

// GetUnit returns one unit.
func (s *Service) GetUnit(ctx context.Context, id int64) (Unit, error) {
	return s.repo.GetUnit(ctx, id)
}

// ListUnits returns all units.
func (s *Service) ListUnits(ctx context.Context) ([]Unit, error) {
	return s.repo.ListUnits(ctx)
}

// CreateSupplier stores a supplier.
func (s *Service) CreateSupplier(ctx context.Context, sup Supplier) (Supplier, error) {
	if sup.Name == "" {
		return Supplier{}, ErrNameRequired
	}
	id, err := s.repo.InsertSupplier(ctx, sup)
	if err != nil {
		return Supplier{}, err
	}
	sup.ID = id
	return sup, nil
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// AppendPriceHistory records an externally observed price change,
// e.g. from the price-history endpoint.
func (s *Service) AppendPriceHistory(ctx context.Context, ph PriceHistory) (PriceHistory, error) {
	if ph.ProductID == 0 {
		return PriceHistory{}, ErrProductNotFound
	}
	if ph.ChangedAt.IsZero() {
		ph.ChangedAt = time.Now()
	}
	id, err := s.repo.InsertPriceHistory(ctx, ph)
	if err != nil {
		return PriceHistory{}, err
	}
	ph.ID = id
	return ph, nil
}

// ListPriceHistory returns price changes for a product, newest first.
func (s *Service) ListPriceHistory(ctx context.Context, productID int64, limit int) ([]PriceHistory, error) {
	return s.repo.ListPriceHistory(ctx, productID, limit)
}
