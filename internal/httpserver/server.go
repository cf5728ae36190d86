package httpserver

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Swooye/FiveNursings-sub000/internal/config"
	"github.com/Swooye/FiveNursings-sub000/internal/healthlog"
	"github.com/Swooye/FiveNursings-sub000/internal/rtc"
)

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, store *healthlog.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Auth-Token"},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := rtc.NewHandler(cfg, store)

	// Offer/answer exchange over plain HTTP. Non-trickle: the answer
	// carries all gathered candidates.
	e.POST("/call", func(c echo.Context) error {
		if !rtcAuthOK(c.Request(), cfg.AuthPassword) {
			return c.NoContent(http.StatusUnauthorized)
		}
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			log.Printf("invalid offer: %v", err)
			return c.NoContent(http.StatusBadRequest)
		}
		answer, err := h.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Printf("webrtc handle offer failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, answer)
	})

	// Trickle-ICE signaling over WebSocket. Auth is enforced inside,
	// either via header/query or a first auth frame.
	e.GET("/rtc", func(c echo.Context) error {
		h.ServeWebSocket(c.Response(), c.Request())
		return nil
	})

	// Recorded log artifacts, newest first.
	e.GET("/logs", func(c echo.Context) error {
		if !rtcAuthOK(c.Request(), cfg.AuthPassword) {
			return c.NoContent(http.StatusUnauthorized)
		}
		if store == nil {
			return c.JSON(http.StatusOK, []healthlog.Artifact{})
		}
		artifacts, err := store.List()
		if err != nil {
			log.Printf("list artifacts failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, artifacts)
	})

	return &Server{Router: e}
}

// rtcAuthOK accepts the shared password via query, bearer header or
// X-Auth-Token. An empty expected password disables auth.
func rtcAuthOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	return rtc.AuthOK(r, expected)
}
