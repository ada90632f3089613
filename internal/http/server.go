// README: Local bridge; registers HTTP routes and delegates to the orchestrator.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripflow/internal/http/handlers"
	"tripflow/internal/http/middleware"
)

type ServerDeps struct {
	Trips    handlers.Orchestrator
	Geocoder handlers.Geocoder
	Logger   logrus.FieldLogger
	// Token guards every /api route when set.
	Token string
}

type Server struct {
	trips    handlers.Orchestrator
	geocoder handlers.Geocoder
	log      logrus.FieldLogger
	token    string
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		trips:    deps.Trips,
		geocoder: deps.Geocoder,
		log:      log.WithField("component", "bridge"),
		token:    deps.Token,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	h := handlers.NewTripHandler(s.trips, s.geocoder)
	api := r.Group("/api", middleware.Auth(s.token))
	api.GET("/route", h.Route)

	t := api.Group("/trip")
	t.GET("", h.Get)
	t.POST("/booking", h.StartBooking)
	t.POST("/route", h.ConfirmRoute)
	t.POST("/vehicle", h.SelectVehicle)
	t.POST("/package", h.SetPackage)
	t.POST("/dispatch", h.Dispatch)
	t.POST("/pay/request", h.RequestPay)
	t.POST("/pay", h.Pay)
	t.POST("/cancel", h.Cancel)
	t.POST("/retry", h.Retry)
	t.POST("/rebook", h.Rebook)
	t.POST("/track/driver", h.TrackDriver)
	t.POST("/track/trip", h.TrackTrip)
	t.POST("/ack", h.Acknowledge)
	t.POST("/reset", h.Reset)
	t.POST("/resync", h.Resync)
	return r
}
