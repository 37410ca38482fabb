package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrInvalidProduct  = apperr.New(apperr.Validation, "invalid_product", "price must be >= 0 and discount within [0,100]")
	ErrProductConflict = apperr.New(apperr.Conflict, "product_conflict", "product was modified concurrently")
)

const productCacheTTL = 60 * time.Second

var maxDiscount = decimal.NewFromInt(100)

type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client) *ProductService {
	return &ProductService{productRepo: productRepo, redisClient: redisClient}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	publish := true
	if req.Publish != nil {
		publish = *req.Publish
	}
	product := &model.Product{
		Name:        req.Name,
		Description: req.Description,
		Images:      req.Images,
		Unit:        req.Unit,
		Price:       req.Price,
		Discount:    req.Discount,
		Stock:       req.Stock,
		Publish:     publish,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

// GetByID returns a product. Unpublished products are visible only when
// includeHidden is set.
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID, includeHidden bool) (*dto.ProductResponse, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				if !resp.Publish && !includeHidden {
					return nil, ErrProductNotFound
				}
				return &resp, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}

	if !product.Publish && !includeHidden {
		return nil, ErrProductNotFound
	}
	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest, includeHidden bool) (*dto.ProductListResponse, error) {
	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Limit:         req.Limit,
		Offset:        (req.Page - 1) * req.Limit,
		Search:        req.Search,
		Sort:          req.Sort,
		Order:         req.Order,
		PublishedOnly: !includeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

// Update applies a partial update guarded by the product version.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.Version != req.Version {
		return nil, ErrProductConflict
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Images != nil {
		product.Images = req.Images
	}
	if req.Unit != nil {
		product.Unit = *req.Unit
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Discount != nil {
		product.Discount = *req.Discount
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Publish != nil {
		product.Publish = *req.Publish
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrProductConflict
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.invalidateCache(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, productCacheKey(id))
	}
}

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func validateProduct(p *model.Product) error {
	if p.Price.IsNegative() || p.Discount.IsNegative() || p.Discount.GreaterThan(maxDiscount) || p.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return dto.ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Images:         images,
		Unit:           p.Unit,
		Price:          p.Price,
		Discount:       p.Discount,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
		Publish:        p.Publish,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
