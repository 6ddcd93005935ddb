package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/catalog"
)

type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Beverages

func (repo *CatalogRepository) CreateBeverage(ctx context.Context, bev catalog.Beverage) (catalog.Beverage, error) {
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO beverages (name, category, is_active, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		bev.Name, bev.Category, bev.IsActive, bev.CreatedAt,
	).Scan(&bev.ID)
	if err != nil {
		return catalog.Beverage{}, errors.Wrap(err, "inserting beverage")
	}
	return bev, nil
}

func (repo *CatalogRepository) QueryBeverages(ctx context.Context, activeOnly bool) ([]catalog.Beverage, error) {
	q := `SELECT id, name, category, is_active, created_at FROM beverages`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`
	bevs := make([]catalog.Beverage, 0)
	if err := repo.db.SelectContext(ctx, &bevs, q); err != nil {
		return nil, errors.Wrap(err, "querying beverages")
	}
	return bevs, nil
}

func (repo *CatalogRepository) GetBeverageByID(ctx context.Context, id int) (catalog.Beverage, error) {
	var bev catalog.Beverage
	err := repo.db.GetContext(ctx, &bev,
		`SELECT id, name, category, is_active, created_at FROM beverages WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return catalog.Beverage{}, catalog.ErrBeverageNotFound
	}
	return bev, errors.Wrap(err, "getting beverage")
}

func (repo *CatalogRepository) UpdateBeverage(ctx context.Context, bev catalog.Beverage) (catalog.Beverage, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE beverages SET name = $1, category = $2, is_active = $3 WHERE id = $4`,
		bev.Name, bev.Category, bev.IsActive, bev.ID)
	if err != nil {
		return catalog.Beverage{}, errors.Wrap(err, "updating beverage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.Beverage{}, catalog.ErrBeverageNotFound
	}
	return bev, nil
}

func (repo *CatalogRepository) DeleteBeverageByID(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM beverages WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting beverage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrBeverageNotFound
	}
	return nil
}

// Role prices

func (repo *CatalogRepository) GetRolePrice(ctx context.Context, roleID, beverageID int) (catalog.RolePrice, error) {
	var rp catalog.RolePrice
	err := repo.db.GetContext(ctx, &rp, `
SELECT id, role_id, beverage_id, price_cents, created_at, updated_at
FROM beverage_prices WHERE role_id = $1 AND beverage_id = $2`, roleID, beverageID)
	if err == sql.ErrNoRows {
		return catalog.RolePrice{}, catalog.ErrNoPrice
	}
	return rp, errors.Wrap(err, "getting role price")
}

func (repo *CatalogRepository) QueryRolePrices(ctx context.Context, roleID int) ([]catalog.RolePrice, error) {
	prices := make([]catalog.RolePrice, 0)
	err := repo.db.SelectContext(ctx, &prices, `
SELECT id, role_id, beverage_id, price_cents, created_at, updated_at
FROM beverage_prices WHERE role_id = $1 ORDER BY beverage_id`, roleID)
	if err != nil {
		return nil, errors.Wrap(err, "querying role prices")
	}
	return prices, nil
}

func (repo *CatalogRepository) ReplaceRolePrices(ctx context.Context, roleID int, prices []catalog.RolePrice) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM beverage_prices WHERE role_id = $1`, roleID); err != nil {
		return errors.Wrap(err, "clearing role prices")
	}
	for _, rp := range prices {
		_, err = tx.ExecContext(ctx, `
INSERT INTO beverage_prices (role_id, beverage_id, price_cents, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`,
			roleID, rp.BeverageID, rp.PriceCents, rp.CreatedAt, rp.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting role price")
		}
	}
	return errors.Wrap(tx.Commit(), "committing role prices")
}

// Daily prices

func (repo *CatalogRepository) GetDailyPrice(ctx context.Context, beverageID int, date time.Time) (catalog.DailyPrice, error) {
	var dp catalog.DailyPrice
	err := repo.db.GetContext(ctx, &dp, `
SELECT id, beverage_id, price_date AS date, price_cents, is_active, created_at
FROM daily_prices WHERE beverage_id = $1 AND price_date = $2`, beverageID, date)
	if err == sql.ErrNoRows {
		return catalog.DailyPrice{}, catalog.ErrNoPrice
	}
	return dp, errors.Wrap(err, "getting daily price")
}

func (repo *CatalogRepository) QueryDailyPrices(ctx context.Context, date time.Time) ([]catalog.DailyPrice, error) {
	prices := make([]catalog.DailyPrice, 0)
	err := repo.db.SelectContext(ctx, &prices, `
SELECT id, beverage_id, price_date AS date, price_cents, is_active, created_at
FROM daily_prices WHERE price_date = $1 ORDER BY beverage_id`, date)
	if err != nil {
		return nil, errors.Wrap(err, "querying daily prices")
	}
	return prices, nil
}

func (repo *CatalogRepository) UpsertDailyPrice(ctx context.Context, price catalog.DailyPrice) (catalog.DailyPrice, error) {
	q := `
INSERT INTO daily_prices (beverage_id, price_date, price_cents, is_active, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (beverage_id, price_date)
DO UPDATE SET price_cents = EXCLUDED.price_cents, is_active = EXCLUDED.is_active
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		price.BeverageID, price.Date, price.PriceCents, price.IsActive, price.CreatedAt,
	).Scan(&price.ID)
	if err != nil {
		return catalog.DailyPrice{}, errors.Wrap(err, "upserting daily price")
	}
	return price, nil
}

// Display items

func (repo *CatalogRepository) CreateDisplayItem(ctx context.Context, item catalog.DisplayItem) (catalog.DisplayItem, error) {
	q := `
INSERT INTO display_items (name, description, price_cents, category, display_order, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		item.Name, item.Description, item.PriceCents, item.Category,
		item.DisplayOrder, item.IsActive, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return catalog.DisplayItem{}, errors.Wrap(err, "inserting display item")
	}
	return item, nil
}

func (repo *CatalogRepository) QueryDisplayItems(ctx context.Context, activeOnly bool) ([]catalog.DisplayItem, error) {
	q := `
SELECT id, name, description, price_cents, category, display_order, is_active, created_at, updated_at
FROM display_items`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY display_order, name`
	items := make([]catalog.DisplayItem, 0)
	if err := repo.db.SelectContext(ctx, &items, q); err != nil {
		return nil, errors.Wrap(err, "querying display items")
	}
	return items, nil
}

func (repo *CatalogRepository) GetDisplayItemByID(ctx context.Context, id int) (catalog.DisplayItem, error) {
	var item catalog.DisplayItem
	err := repo.db.GetContext(ctx, &item, `
SELECT id, name, description, price_cents, category, display_order, is_active, created_at, updated_at
FROM display_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return catalog.DisplayItem{}, catalog.ErrItemNotFound
	}
	return item, errors.Wrap(err, "getting display item")
}

func (repo *CatalogRepository) UpdateDisplayItem(ctx context.Context, item catalog.DisplayItem) (catalog.DisplayItem, error) {
	q := `
UPDATE display_items
SET name = $1, description = $2, price_cents = $3, category = $4, display_order = $5,
    is_active = $6, updated_at = $7
WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, q,
		item.Name, item.Description, item.PriceCents, item.Category,
		item.DisplayOrder, item.IsActive, time.Now().UTC(), item.ID)
	if err != nil {
		return catalog.DisplayItem{}, errors.Wrap(err, "updating display item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.DisplayItem{}, catalog.ErrItemNotFound
	}
	return item, nil
}

func (repo *CatalogRepository) DeleteDisplayItemByID(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM display_items WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting display item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrItemNotFound
	}
	return nil
}

// QueryAllRoleIDs lets the catalog service apply a unified price list to
// every role.
func (repo *CatalogRepository) QueryAllRoleIDs(ctx context.Context) ([]int, error) {
	ids := make([]int, 0)
	if err := repo.db.SelectContext(ctx, &ids, `SELECT id FROM roles ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying role ids")
	}
	return ids, nil
}
