package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/payment"
)

type paymentApi struct {
	svc *payment.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.Service) {
	api := paymentApi{svc: svc}

	// the kiosk starts payments and checks balances without a token
	g.POST("/payments", api.create)
	g.POST("/payments/:id/refresh", api.refreshPayPal)
	g.GET("/users/:id/balance", api.balance)
	g.POST("/cash-requests", api.createCashRequest)

	ag := g.Group("", jwt, adminMiddleware())
	ag.GET("/payments", api.query)
	ag.GET("/payments/:id", api.retrieve)
	ag.POST("/payments/:id/confirm", api.confirm)
	ag.POST("/payments/:id/cancel", api.cancel)
	ag.GET("/cash-requests", api.queryCashRequests)
	ag.POST("/cash-requests/:id/collect", api.collectCashRequest)
	ag.POST("/cash-requests/:id/cancel", api.cancelCashRequest)
	ag.POST("/mypos", api.startMyPOS)
	ag.POST("/mypos/:id/complete", api.completeMyPOS)
	ag.POST("/mypos/:id/fail", api.failMyPOS)
}

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	pmt, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	pmt, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) query(ctx echo.Context) error {
	var userID int
	if raw := ctx.QueryParam("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		userID = id
	}

	pmts, err := api.svc.Query(ctx.Request().Context(), userID, ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *paymentApi) balance(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	cents, err := api.svc.UnpaidBalance(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{UserID: id, BalanceCents: cents})
}

func (api *paymentApi) confirm(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data ConfirmRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmRequest")
	}

	pmt, err := api.svc.Confirm(ctx.Request().Context(), id, data.Reference, data.Note, data.CreatedBy)
	if err != nil {
		return errors.Wrap(err, "confirming payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) cancel(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data CancelRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelRequest")
	}
	if data.Reason == "" {
		data.Reason = "cancelled by staff"
	}

	pmt, err := api.svc.Cancel(ctx.Request().Context(), id, data.Reason)
	if err != nil {
		return errors.Wrap(err, "cancelling payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) refreshPayPal(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	confirmed, err := api.svc.RefreshPayPal(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "refreshing paypal payment")
	}

	pmt, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving payment")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{Confirmed: confirmed, Payment: pmt})
}

func (api *paymentApi) createCashRequest(ctx echo.Context) error {
	var data payment.NewCashRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCashRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	req, err := api.svc.CreateCashRequest(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating cash request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *paymentApi) queryCashRequests(ctx echo.Context) error {
	reqs, err := api.svc.QueryCashRequests(ctx.Request().Context(), ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying cash requests")
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *paymentApi) collectCashRequest(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data ResolveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveRequest")
	}

	pmt, err := api.svc.CollectCashRequest(ctx.Request().Context(), id, data.ResolvedBy)
	if err != nil {
		return errors.Wrap(err, "collecting cash request")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) cancelCashRequest(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data ResolveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveRequest")
	}

	req, err := api.svc.CancelCashRequest(ctx.Request().Context(), id, data.ResolvedBy, data.Note)
	if err != nil {
		return errors.Wrap(err, "cancelling cash request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *paymentApi) startMyPOS(ctx echo.Context) error {
	var data payment.NewMyPOSTransaction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMyPOSTransaction")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	tx, err := api.svc.StartMyPOS(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting card transaction")
	}
	return ctx.JSON(http.StatusCreated, tx)
}

func (api *paymentApi) completeMyPOS(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data MyPOSResultRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MyPOSResultRequest")
	}
	if data.TransactionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "transaction_id is required")
	}

	tx, err := api.svc.CompleteMyPOS(ctx.Request().Context(), id, data.TransactionID)
	if err != nil {
		return errors.Wrap(err, "completing card transaction")
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *paymentApi) failMyPOS(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data MyPOSResultRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MyPOSResultRequest")
	}
	if data.Status == "" {
		data.Status = payment.MyPOSFailed
	}

	tx, err := api.svc.FailMyPOS(ctx.Request().Context(), id, data.Status)
	if err != nil {
		return errors.Wrap(err, "failing card transaction")
	}
	return ctx.JSON(http.StatusOK, tx)
}

type (
	ConfirmRequest struct {
		Reference string `json:"reference"`
		Note      string `json:"note"`
		CreatedBy string `json:"created_by"`
	}

	CancelRequest struct {
		Reason string `json:"reason"`
	}

	ResolveRequest struct {
		ResolvedBy string `json:"resolved_by"`
		Note       string `json:"note"`
	}

	MyPOSResultRequest struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}

	BalanceResponse struct {
		UserID       int `json:"user_id"`
		BalanceCents int `json:"balance_cents"`
	}

	RefreshResponse struct {
		Confirmed bool            `json:"confirmed"`
		Payment   payment.Payment `json:"payment"`
	}
)
