package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bakerypos/internal/apperr"
	"bakerypos/internal/domain"
	"bakerypos/internal/money"
	"bakerypos/internal/validate"
)

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = withPrice(items[i])
	}
	return items, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, translateStoreErr(err, fmt.Sprintf("item %d not found", id))
	}
	return withPrice(*item), nil
}

// FindItemByName matches case-insensitively; the lowest id wins on duplicates.
func (s *Service) FindItemByName(ctx context.Context, name string) (domain.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Item{}, apperr.New(apperr.CodeInvalidInput, "name is required")
	}
	item, err := s.repo.FindItemByName(ctx, name)
	if err != nil {
		return domain.Item{}, translateStoreErr(err, fmt.Sprintf("no item named %q", name))
	}
	return withPrice(*item), nil
}

func (s *Service) AddItem(ctx context.Context, input domain.ItemInput) (domain.Item, error) {
	item, err := itemFromInput(input)
	if err != nil {
		return domain.Item{}, err
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, translateStoreErr(err, "item rejected")
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"item_id": created.ID, "name": created.Name}), "item added")
	return withPrice(*created), nil
}

// UpdateItem replaces name and price. The stored image is kept unless the
// input carries a new one or sets ClearImage.
func (s *Service) UpdateItem(ctx context.Context, id int64, input domain.ItemInput) (domain.Item, error) {
	item, err := itemFromInput(input)
	if err != nil {
		return domain.Item{}, err
	}

	existing, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, translateStoreErr(err, fmt.Sprintf("item %d not found", id))
	}
	item.ID = id
	switch {
	case input.ClearImage:
		item.Image = nil
	case len(item.Image) == 0:
		item.Image = existing.Image
	}

	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return domain.Item{}, translateStoreErr(err, fmt.Sprintf("item %d not updated", id))
	}
	s.log.Info(s.log.WithField(ctx, "item_id", id), "item updated")
	return withPrice(*updated), nil
}

// RemoveItem deletes the catalog entry only; recorded sales keep the
// captured name and price.
func (s *Service) RemoveItem(ctx context.Context, id int64) error {
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return translateStoreErr(err, fmt.Sprintf("item %d not found", id))
	}
	s.log.Info(s.log.WithField(ctx, "item_id", id), "item removed")
	return nil
}

func itemFromInput(input domain.ItemInput) (domain.Item, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(input); err != nil {
		return domain.Item{}, err
	}

	if input.Price == nil {
		return domain.Item{}, apperr.New(apperr.CodeInvalidInput, "validation failed").
			WithDetails(map[string]string{"price": "is required"})
	}
	cents, err := money.CentsFromDecimal(*input.Price)
	if err != nil {
		details := map[string]string{"price": "is invalid"}
		switch {
		case errors.Is(err, money.ErrRange):
			details["price"] = "must be at most " + money.FromCents(money.MaxPriceCents).StringFixed(2)
		case errors.Is(err, money.ErrNegative):
			details["price"] = "must not be negative"
		case errors.Is(err, money.ErrPrecision):
			details["price"] = "must have at most two decimal places"
		}
		return domain.Item{}, apperr.Wrap(apperr.CodeInvalidInput, err, "validation failed").WithDetails(details)
	}

	return domain.Item{
		Name:       input.Name,
		PriceCents: cents,
		Image:      input.Image,
	}, nil
}

func withPrice(item domain.Item) domain.Item {
	item.Price = money.FromCents(item.PriceCents).StringFixed(2)
	return item
}
