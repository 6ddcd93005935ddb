package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *user.Service) {
	api := userApi{svc: svc}

	ug := g.Group("/users")

	// un-authed endpoints: the kiosk picks a user by name and proves
	// possession of the PIN, nothing more
	ug.GET("/leaderboard", api.leaderboard)
	ug.GET("/:id", api.retrieve)
	ug.GET("/:id/pin", api.hasPIN)
	ug.POST("/:id/pin", api.setPIN)
	ug.POST("/:id/verify-pin", api.verifyPIN)

	// staff endpoints
	ag := ug.Group("", jwt, adminMiddleware())
	// registered after ag: creating the subgroup adds a catch-all on the
	// exact /users path that would otherwise shadow this un-authed route
	ug.GET("", api.query)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/reset-pin", api.resetPIN)
	ag.POST("/pins/backfill", api.backfillPINs)
	ag.GET("/roles", api.queryRoles)
	ag.POST("/roles", api.createRole)
	ag.DELETE("/roles/:id", api.destroyRole)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	users, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	usr, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) hasPIN(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	has, err := api.svc.HasPIN(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "checking pin")
	}
	return ctx.JSON(http.StatusOK, PINStatusResponse{HasPIN: has})
}

func (api *userApi) setPIN(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data PINRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PINRequest")
	}
	attempt := user.PINAttempt{UserID: id, PIN: data.PIN}
	if err = attempt.Validate(); err != nil {
		return err
	}
	if err = api.svc.SetPIN(ctx.Request().Context(), id, data.PIN); err != nil {
		return errors.Wrap(err, "setting pin")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "PIN set."})
}

func (api *userApi) verifyPIN(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data PINRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PINRequest")
	}

	usr, err := api.svc.VerifyPIN(ctx.Request().Context(), user.PINAttempt{UserID: id, PIN: data.PIN})
	if err != nil {
		return errors.Wrap(err, "verifying pin")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetPIN(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data PINRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PINRequest")
	}
	if data.PIN != "" { // empty clears the PIN
		attempt := user.PINAttempt{UserID: id, PIN: data.PIN}
		if err = attempt.Validate(); err != nil {
			return err
		}
	}
	if err = api.svc.ResetPIN(ctx.Request().Context(), id, data.PIN); err != nil {
		return errors.Wrap(err, "resetting pin")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "PIN reset."})
}

func (api *userApi) backfillPINs(ctx echo.Context) error {
	added, err := api.svc.BackfillPINArchive(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "backfilling pin archive")
	}
	return ctx.JSON(http.StatusOK, BackfillResponse{Added: added})
}

func (api *userApi) leaderboard(ctx echo.Context) error {
	entries, err := api.svc.Leaderboard(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}
	if entries == nil {
		entries = []user.LeaderboardEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	roles, err := api.svc.QueryAllRoles(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying roles")
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *userApi) createRole(ctx echo.Context) error {
	var data user.NewRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRole")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	role, err := api.svc.CreateRole(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating role")
	}
	return ctx.JSON(http.StatusCreated, role)
}

func (api *userApi) destroyRole(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteRole(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting role")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// pathID parses the :id path param; a garbage id is just a 404.
func pathID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

type (
	PINRequest struct {
		PIN string `json:"pin"`
	}

	PINStatusResponse struct {
		HasPIN bool `json:"has_pin"`
	}

	BackfillResponse struct {
		Added int `json:"added"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)
