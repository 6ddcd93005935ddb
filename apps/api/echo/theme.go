package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/theme"
)

const sseKeepaliveInterval = 30 * time.Second

type themeApi struct {
	svc    *theme.Service
	bus    theme.Bus
	logger core.Logger
}

func registerThemeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *theme.Service, bus theme.Bus, logger core.Logger) {
	api := themeApi{svc: svc, bus: bus, logger: logger}

	tg := g.Group("/theme")
	tg.GET("", api.retrieve)
	tg.GET("/events", api.events)
	tg.POST("", api.update, jwt, adminMiddleware())
}

func (api *themeApi) retrieve(ctx echo.Context) error {
	st, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current theme")
	}
	return ctx.JSON(http.StatusOK, newThemeResponse(st))
}

func (api *themeApi) update(ctx echo.Context) error {
	var data ThemeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ThemeRequest")
	}

	st, err := api.svc.Set(ctx.Request().Context(), data.Theme)
	if err != nil {
		return errors.Wrap(err, "setting theme")
	}
	return ctx.JSON(http.StatusOK, newThemeResponse(st))
}

// events streams theme changes as server-sent events. The current state goes
// out first so a fresh subscriber renders without waiting for a change.
func (api *themeApi) events(ctx echo.Context) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	st, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current theme")
	}
	if err = writeSSE(res, st); err != nil {
		return err
	}

	states, cancel := api.bus.SubscribeTheme()
	defer cancel()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if err = writeSSE(res, st); err != nil {
				return nil // client went away
			}
		case <-keepalive.C:
			if _, err = fmt.Fprint(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeSSE(res *echo.Response, st theme.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshalling theme state")
	}
	if _, err = fmt.Fprintf(res, "event: theme\ndata: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}

type (
	ThemeRequest struct {
		Theme string `json:"theme"`
	}

	ThemeResponse struct {
		Success bool   `json:"success"`
		Theme   string `json:"theme"`
		Version string `json:"version"`
	}
)

func newThemeResponse(st theme.State) ThemeResponse {
	return ThemeResponse{Success: true, Theme: st.Name, Version: st.Version}
}
