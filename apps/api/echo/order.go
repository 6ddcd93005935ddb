package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/user"
)

type orderApi struct {
	svc   *order.Service
	users *user.Service
}

func registerOrderAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *order.Service, users *user.Service) {
	api := orderApi{svc: svc, users: users}

	// booking is PIN-authorized, not token-authorized
	g.POST("/consumptions", api.book)
	g.GET("/users/:id/summary", api.monthSummary)

	ag := g.Group("", jwt, adminMiddleware())
	ag.GET("/users/:id/history", api.history)
	ag.GET("/reports/monthly", api.monthlyReport)
	ag.POST("/invoices/:id/sent", api.markInvoiceSent)
	ag.POST("/users/:id/statement", api.sendStatement)
}

func (api *orderApi) book(ctx echo.Context) error {
	var data BookingRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BookingRequest")
	}

	attempt := user.PINAttempt{UserID: data.UserID, PIN: data.PIN}
	if err := attempt.Validate(); err != nil {
		return err
	}
	if _, err := api.users.VerifyPIN(ctx.Request().Context(), attempt); err != nil {
		return errors.Wrap(err, "verifying PIN")
	}

	nc := order.NewConsumption{
		UserID:     data.UserID,
		BeverageID: data.BeverageID,
		Quantity:   data.Quantity,
	}
	if err := nc.Validate(); err != nil {
		return err
	}

	cons, err := api.svc.AddConsumption(ctx.Request().Context(), nc)
	if err != nil {
		return errors.Wrap(err, "booking consumption")
	}
	return ctx.JSON(http.StatusCreated, cons)
}

func (api *orderApi) monthSummary(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	summaries, err := api.svc.MonthSummary(ctx.Request().Context(), id, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "querying month summary")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *orderApi) history(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	summaries, err := api.svc.History(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying history")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *orderApi) monthlyReport(ctx echo.Context) error {
	now := time.Now().UTC()
	year, month := now.Year(), now.Month()

	if raw := ctx.QueryParam("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = y
	}
	if raw := ctx.QueryParam("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid month")
		}
		month = time.Month(m)
	}

	report, err := api.svc.MonthlyReport(ctx.Request().Context(), year, month)
	if err != nil {
		return errors.Wrap(err, "building monthly report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *orderApi) markInvoiceSent(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.MarkInvoiceSent(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "marking invoice sent")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Invoice marked sent."})
}

// sendStatement emails a user their consumption summary for the current
// month. Users without an email address on file are skipped silently.
func (api *orderApi) sendStatement(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}

	now := time.Now().UTC()
	summaries, err := api.svc.MonthSummary(ctx.Request().Context(), id, now)
	if err != nil {
		return errors.Wrap(err, "querying month summary")
	}

	var total int
	items := make([]statementItem, 0, len(summaries))
	for _, s := range summaries {
		total += s.CostCents
		items = append(items, statementItem{
			Beverage: s.BeverageName,
			Quantity: s.Quantity,
			Cost:     core.FormatCents(s.CostCents),
		})
	}
	period := now.Format("January 2006")
	api.users.SendStatement(ctx.Request().Context(), usr, "Your statement for "+period, statementData{
		Name:   usr.FullName(),
		Period: period,
		Items:  items,
		Total:  core.FormatCents(total),
	})
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Statement sent."})
}

type (
	statementItem struct {
		Beverage string
		Quantity int
		Cost     string
	}

	statementData struct {
		Name   string
		Period string
		Items  []statementItem
		Total  string
	}
)

// BookingRequest is a kiosk order: the PIN authorizes the booking.
type BookingRequest struct {
	UserID     int    `json:"user_id"`
	BeverageID int    `json:"beverage_id"`
	Quantity   int    `json:"quantity"`
	PIN        string `json:"pin"`
}
