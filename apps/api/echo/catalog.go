package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/catalog"
)

type catalogApi struct {
	svc *catalog.Service
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *catalog.Service) {
	api := catalogApi{svc: svc}

	// the kiosk needs the drink list and the price board without a token
	g.GET("/beverages", api.queryBeverages)
	g.GET("/price-list", api.priceList)

	ag := g.Group("", jwt, adminMiddleware())
	ag.POST("/beverages", api.createBeverage)
	ag.PUT("/beverages/:id/active", api.setBeverageActive)
	ag.DELETE("/beverages/:id", api.destroyBeverage)

	ag.GET("/prices/roles/:id", api.queryRolePrices)
	ag.PUT("/prices/roles", api.setRolePrices)
	ag.PUT("/prices/unified", api.setUnifiedPrices)
	ag.GET("/prices/daily", api.queryDailyPrices)
	ag.POST("/prices/daily", api.setDailyPrice)

	ag.GET("/display-items", api.queryDisplayItems)
	ag.POST("/display-items", api.createDisplayItem)
	ag.PUT("/display-items/:id", api.updateDisplayItem)
	ag.DELETE("/display-items/:id", api.destroyDisplayItem)
}

func (api *catalogApi) queryBeverages(ctx echo.Context) error {
	activeOnly := ctx.QueryParam("all") == ""
	bevs, err := api.svc.QueryBeverages(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying beverages")
	}
	return ctx.JSON(http.StatusOK, bevs)
}

func (api *catalogApi) priceList(ctx echo.Context) error {
	items, err := api.svc.PriceList(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying price list")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *catalogApi) createBeverage(ctx echo.Context) error {
	var data catalog.NewBeverage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBeverage")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	bev, err := api.svc.CreateBeverage(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating beverage")
	}
	return ctx.JSON(http.StatusCreated, bev)
}

func (api *catalogApi) setBeverageActive(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data ActiveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}

	bev, err := api.svc.SetBeverageActive(ctx.Request().Context(), id, data.Active)
	if err != nil {
		return errors.Wrap(err, "toggling beverage")
	}
	return ctx.JSON(http.StatusOK, bev)
}

func (api *catalogApi) destroyBeverage(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteBeverage(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting beverage")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) queryRolePrices(ctx echo.Context) error {
	roleID, err := pathID(ctx)
	if err != nil {
		return err
	}
	prices, err := api.svc.QueryRolePrices(ctx.Request().Context(), roleID)
	if err != nil {
		return errors.Wrap(err, "querying role prices")
	}
	return ctx.JSON(http.StatusOK, prices)
}

func (api *catalogApi) setRolePrices(ctx echo.Context) error {
	var data catalog.RolePrices
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RolePrices")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.SetRolePrices(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "setting role prices")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Prices updated."})
}

func (api *catalogApi) setUnifiedPrices(ctx echo.Context) error {
	var data catalog.UnifiedPrices
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnifiedPrices")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.SetUnifiedPrices(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "setting unified prices")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Prices updated."})
}

func (api *catalogApi) queryDailyPrices(ctx echo.Context) error {
	date := time.Now().UTC()
	if raw := ctx.QueryParam("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		}
		date = parsed
	}

	prices, err := api.svc.QueryDailyPrices(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "querying daily prices")
	}
	return ctx.JSON(http.StatusOK, prices)
}

func (api *catalogApi) setDailyPrice(ctx echo.Context) error {
	var data catalog.NewDailyPrice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDailyPrice")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	price, err := api.svc.SetDailyPrice(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "setting daily price")
	}
	return ctx.JSON(http.StatusOK, price)
}

func (api *catalogApi) queryDisplayItems(ctx echo.Context) error {
	items, err := api.svc.QueryDisplayItems(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying display items")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *catalogApi) createDisplayItem(ctx echo.Context) error {
	var data catalog.NewDisplayItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDisplayItem")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	item, err := api.svc.CreateDisplayItem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating display item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *catalogApi) updateDisplayItem(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data catalog.UpdateDisplayItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDisplayItem")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	item, err := api.svc.UpdateDisplayItem(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating display item")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *catalogApi) destroyDisplayItem(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteDisplayItem(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting display item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ActiveRequest toggles a record's is_active flag.
type ActiveRequest struct {
	Active bool `json:"active"`
}
