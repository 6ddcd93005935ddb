package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/staff"
)

type staffApi struct {
	svc  *staff.Service
	conf *core.Config
}

func registerStaffAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *staff.Service, conf *core.Config) {
	api := staffApi{svc: svc, conf: conf}

	ag := g.Group("/admin")
	ag.POST("/login", api.login)

	authed := ag.Group("", jwt, adminMiddleware())
	authed.POST("/token-refresh", api.refreshToken)
	authed.GET("/status", api.status)
	authed.GET("/access-logs", api.accessLogs)
}

func (api *staffApi) login(ctx echo.Context) error {
	var data AdminLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdminLoginRequest")
	}

	att := staff.Attempt{
		Token:      data.Token,
		IPAddress:  ctx.RealIP(),
		UserAgent:  ctx.Request().UserAgent(),
		DeviceName: data.DeviceName,
	}
	if err := api.svc.Authenticate(ctx.Request().Context(), att); err != nil {
		return errors.Wrap(err, "authenticating staff")
	}

	claims := GetAdminClaims(api.conf, data.DeviceName)
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *staffApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *staffApi) status(ctx echo.Context) error {
	status, err := api.svc.SecurityStatus(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting security status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *staffApi) accessLogs(ctx echo.Context) error {
	logs, err := api.svc.AccessLogs(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying access logs")
	}
	return ctx.JSON(http.StatusOK, logs)
}

type (
	AdminLoginRequest struct {
		Token      string `json:"token" validate:"required"`
		DeviceName string `json:"device_name"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}
)
