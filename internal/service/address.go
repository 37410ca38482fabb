package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrAddressNotFound  = apperr.New(apperr.NotFound, "address_not_found", "address not found")
	ErrAddressForbidden = apperr.New(apperr.Forbidden, "address_forbidden", "address belongs to another user")
)

type AddressService struct {
	addressRepo repository.AddressRepository
}

func NewAddressService(addressRepo repository.AddressRepository) *AddressService {
	return &AddressService{addressRepo: addressRepo}
}

func (s *AddressService) List(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	addrs, err := s.addressRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addrs, nil
}

func (s *AddressService) Add(ctx context.Context, userID uuid.UUID, req dto.CreateAddressRequest) (*model.Address, error) {
	addr := &model.Address{
		UserID:      userID,
		AddressLine: req.AddressLine,
		City:        req.City,
		State:       req.State,
		Pincode:     req.Pincode,
		Country:     req.Country,
		Mobile:      req.Mobile,
		Active:      true,
	}
	if err := s.addressRepo.Create(ctx, addr); err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return addr, nil
}

// Update applies the non-nil fields of req to an address the user owns.
// A field that is present may not be blank.
func (s *AddressService) Update(ctx context.Context, userID, addressID uuid.UUID, req dto.UpdateAddressRequest) (*model.Address, error) {
	addr, err := ownedAddress(ctx, s.addressRepo, userID, addressID)
	if err != nil {
		return nil, err
	}
	fields := []struct {
		name string
		val  *string
		dst  *string
	}{
		{"addressLine", req.AddressLine, &addr.AddressLine},
		{"city", req.City, &addr.City},
		{"state", req.State, &addr.State},
		{"pincode", req.Pincode, &addr.Pincode},
		{"country", req.Country, &addr.Country},
		{"mobile", req.Mobile, &addr.Mobile},
	}
	for _, f := range fields {
		if f.val == nil {
			continue
		}
		v := strings.TrimSpace(*f.val)
		if v == "" {
			return nil, apperr.New(apperr.Validation, "validation_error", f.name+" cannot be blank")
		}
		*f.dst = v
	}

	if err := s.addressRepo.Update(ctx, addr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("update address: %w", err)
	}
	return addr, nil
}

// Delete deactivates the address. Orders keep referencing it.
func (s *AddressService) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	if _, err := ownedAddress(ctx, s.addressRepo, userID, addressID); err != nil {
		return err
	}
	if err := s.addressRepo.Deactivate(ctx, addressID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("deactivate address: %w", err)
	}
	return nil
}

// ownedAddress loads an active address and checks it belongs to userID.
func ownedAddress(ctx context.Context, repo repository.AddressRepository, userID, addressID uuid.UUID) (*model.Address, error) {
	addr, err := repo.GetByID(ctx, addressID)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if addr == nil || !addr.Active {
		return nil, ErrAddressNotFound
	}
	if addr.UserID != userID {
		return nil, ErrAddressForbidden
	}
	return addr, nil
}
