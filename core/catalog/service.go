package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrBeverageNotFound = errors.New("beverage not found")
	ErrItemNotFound     = errors.New("display item not found")
	ErrNoPrice          = errors.New("no price configured for this role and beverage")
)

type (
	Repository interface {
		CreateBeverage(ctx context.Context, bev Beverage) (Beverage, error)
		QueryBeverages(ctx context.Context, activeOnly bool) ([]Beverage, error)
		GetBeverageByID(ctx context.Context, id int) (Beverage, error)
		UpdateBeverage(ctx context.Context, bev Beverage) (Beverage, error)
		// DeleteBeverageByID removes the beverage along with its prices;
		// consumptions keep their recorded unit price.
		DeleteBeverageByID(ctx context.Context, id int) error

		GetRolePrice(ctx context.Context, roleID, beverageID int) (RolePrice, error)
		QueryRolePrices(ctx context.Context, roleID int) ([]RolePrice, error)
		// ReplaceRolePrices swaps a role's complete price list in one transaction.
		ReplaceRolePrices(ctx context.Context, roleID int, prices []RolePrice) error

		GetDailyPrice(ctx context.Context, beverageID int, date time.Time) (DailyPrice, error)
		QueryDailyPrices(ctx context.Context, date time.Time) ([]DailyPrice, error)
		UpsertDailyPrice(ctx context.Context, price DailyPrice) (DailyPrice, error)

		CreateDisplayItem(ctx context.Context, item DisplayItem) (DisplayItem, error)
		QueryDisplayItems(ctx context.Context, activeOnly bool) ([]DisplayItem, error)
		GetDisplayItemByID(ctx context.Context, id int) (DisplayItem, error)
		UpdateDisplayItem(ctx context.Context, item DisplayItem) (DisplayItem, error)
		DeleteDisplayItemByID(ctx context.Context, id int) error
	}

	// RoleLister is the slice of the user domain the catalog needs for
	// unified price updates.
	RoleLister interface {
		QueryAllRoleIDs(ctx context.Context) ([]int, error)
	}

	Service struct {
		repo  Repository
		roles RoleLister
	}
)

func NewService(repo Repository, roles RoleLister) *Service {
	return &Service{repo: repo, roles: roles}
}

// Beverages

func (svc *Service) CreateBeverage(ctx context.Context, nb NewBeverage) (Beverage, error) {
	return svc.repo.CreateBeverage(ctx, Beverage{
		Name:      nb.Name,
		Category:  nb.Category,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) QueryBeverages(ctx context.Context, activeOnly bool) ([]Beverage, error) {
	return svc.repo.QueryBeverages(ctx, activeOnly)
}

func (svc *Service) GetBeverage(ctx context.Context, id int) (Beverage, error) {
	return svc.repo.GetBeverageByID(ctx, id)
}

func (svc *Service) SetBeverageActive(ctx context.Context, id int, active bool) (Beverage, error) {
	bev, err := svc.repo.GetBeverageByID(ctx, id)
	if err != nil {
		return Beverage{}, err
	}
	bev.IsActive = active
	return svc.repo.UpdateBeverage(ctx, bev)
}

func (svc *Service) DeleteBeverage(ctx context.Context, id int) error {
	if _, err := svc.repo.GetBeverageByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteBeverageByID(ctx, id)
}

// Prices

func (svc *Service) QueryRolePrices(ctx context.Context, roleID int) ([]RolePrice, error) {
	return svc.repo.QueryRolePrices(ctx, roleID)
}

// SetRolePrices replaces a role's complete price list.
func (svc *Service) SetRolePrices(ctx context.Context, rp RolePrices) error {
	now := time.Now().UTC()
	prices := make([]RolePrice, 0, len(rp.Prices))
	for _, p := range rp.Prices {
		if _, err := svc.repo.GetBeverageByID(ctx, p.BeverageID); err != nil {
			return err
		}
		prices = append(prices, RolePrice{
			RoleID:     rp.RoleID,
			BeverageID: p.BeverageID,
			PriceCents: p.PriceCents,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return svc.repo.ReplaceRolePrices(ctx, rp.RoleID, prices)
}

// SetUnifiedPrices applies the same price list to every role.
func (svc *Service) SetUnifiedPrices(ctx context.Context, up UnifiedPrices) error {
	roleIDs, err := svc.roles.QueryAllRoleIDs(ctx)
	if err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if err = svc.SetRolePrices(ctx, RolePrices{RoleID: roleID, Prices: up.Prices}); err != nil {
			return err
		}
	}
	return nil
}

// SetDailyPrice sets (or replaces) the per-day override for a beverage.
// A zero date means today.
func (svc *Service) SetDailyPrice(ctx context.Context, nd NewDailyPrice) (DailyPrice, error) {
	if _, err := svc.repo.GetBeverageByID(ctx, nd.BeverageID); err != nil {
		return DailyPrice{}, err
	}
	date := nd.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return svc.repo.UpsertDailyPrice(ctx, DailyPrice{
		BeverageID: nd.BeverageID,
		Date:       truncateToDay(date),
		PriceCents: nd.PriceCents,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	})
}

func (svc *Service) QueryDailyPrices(ctx context.Context, date time.Time) ([]DailyPrice, error) {
	return svc.repo.QueryDailyPrices(ctx, truncateToDay(date))
}

// ResolvePrice returns the effective unit price for a role and beverage on a
// given day: the active daily override wins over the role price. The returned
// RolePrice is the booked price row; consumptions reference it.
func (svc *Service) ResolvePrice(ctx context.Context, roleID, beverageID int, date time.Time) (RolePrice, int, error) {
	rp, err := svc.repo.GetRolePrice(ctx, roleID, beverageID)
	if err != nil {
		return RolePrice{}, 0, err
	}

	cents := rp.PriceCents
	dp, err := svc.repo.GetDailyPrice(ctx, beverageID, truncateToDay(date))
	switch errors.Cause(err) {
	case nil:
		if dp.IsActive {
			cents = dp.PriceCents
		}
	case ErrNoPrice:
		// no override today
	default:
		return RolePrice{}, 0, err
	}
	return rp, cents, nil
}

// Display items

func (svc *Service) CreateDisplayItem(ctx context.Context, ni NewDisplayItem) (DisplayItem, error) {
	now := time.Now().UTC()
	item := DisplayItem{
		Name:         ni.Name,
		PriceCents:   ni.PriceCents,
		Category:     ni.Category,
		DisplayOrder: ni.DisplayOrder,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ni.Description != "" {
		item.Description = null.StringFrom(ni.Description)
	}
	return svc.repo.CreateDisplayItem(ctx, item)
}

// PriceList returns the items shown to customers, ordered by display order
// then name.
func (svc *Service) PriceList(ctx context.Context) ([]DisplayItem, error) {
	return svc.repo.QueryDisplayItems(ctx, true)
}

func (svc *Service) QueryDisplayItems(ctx context.Context) ([]DisplayItem, error) {
	return svc.repo.QueryDisplayItems(ctx, false)
}

func (svc *Service) UpdateDisplayItem(ctx context.Context, id int, ui UpdateDisplayItem) (DisplayItem, error) {
	item, err := svc.repo.GetDisplayItemByID(ctx, id)
	if err != nil {
		return DisplayItem{}, err
	}
	if ui.Name != "" {
		item.Name = ui.Name
	}
	if ui.Description != nil {
		if *ui.Description == "" {
			item.Description = null.String{}
		} else {
			item.Description = null.StringFrom(*ui.Description)
		}
	}
	if ui.PriceCents != nil {
		item.PriceCents = *ui.PriceCents
	}
	if ui.Category != "" {
		item.Category = ui.Category
	}
	if ui.DisplayOrder != nil {
		item.DisplayOrder = *ui.DisplayOrder
	}
	if ui.IsActive != nil {
		item.IsActive = *ui.IsActive
	}
	item.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateDisplayItem(ctx, item)
}

func (svc *Service) DeleteDisplayItem(ctx context.Context, id int) error {
	if _, err := svc.repo.GetDisplayItemByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteDisplayItemByID(ctx, id)
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
