package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
)

type cashbookApi struct {
	svc  *cashbook.Service
	conf *core.Config
}

func registerCashbookAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *cashbook.Service, conf *core.Config) {
	api := cashbookApi{svc: svc, conf: conf}

	ag := g.Group("/cashbook", jwt, adminMiddleware())
	ag.GET("", api.query)
	ag.GET("/balance", api.balance)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/recalculate", api.recalculate)
}

func (api *cashbookApi) company(ctx echo.Context) string {
	if c := ctx.QueryParam("company"); c != "" {
		return c
	}
	return api.conf.Cashbook.SummaryCompany
}

func (api *cashbookApi) query(ctx echo.Context) error {
	entries, err := api.svc.Entries(ctx.Request().Context(), api.company(ctx))
	if err != nil {
		return errors.Wrap(err, "querying cashbook entries")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *cashbookApi) balance(ctx echo.Context) error {
	company := api.company(ctx)
	cents, err := api.svc.CurrentBalance(ctx.Request().Context(), company)
	if err != nil {
		return errors.Wrap(err, "querying cashbook balance")
	}
	return ctx.JSON(http.StatusOK, CashBalanceResponse{Company: company, BalanceCents: cents})
}

func (api *cashbookApi) create(ctx echo.Context) error {
	var data cashbook.NewEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEntry")
	}
	if data.Company == "" {
		data.Company = api.conf.Cashbook.SummaryCompany
	}
	if err := data.Validate(); err != nil {
		return err
	}

	entry, err := api.svc.AddEntry(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating cashbook entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *cashbookApi) update(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data cashbook.UpdateEntry
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEntry")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	entry, err := api.svc.UpdateEntry(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating cashbook entry")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *cashbookApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteEntry(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting cashbook entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cashbookApi) recalculate(ctx echo.Context) error {
	if err := api.svc.RecalculateAll(ctx.Request().Context(), api.company(ctx)); err != nil {
		return errors.Wrap(err, "recalculating cashbook balances")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Cashbook recalculated."})
}

type CashBalanceResponse struct {
	Company      string `json:"company"`
	BalanceCents int    `json:"balance_cents"`
}
