package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/metacode/fiches-api/docs"
	"github.com/metacode/fiches-api/internal/api/handler"
	"github.com/metacode/fiches-api/internal/api/middleware"
	"github.com/metacode/fiches-api/internal/core/ports"
	"github.com/metacode/fiches-api/internal/infrastructure/realtime"
)

// Dependencies are the collaborators the HTTP surface is built from. Mongo
// and Redis may be nil when the process runs without them.
type Dependencies struct {
	Logger        zerolog.Logger
	AuthService   ports.AuthService
	RecordService ports.RecordService
	Verifier      middleware.TokenVerifier
	Registry      *realtime.Registry

	Mongo *mongo.Database
	Redis *redis.Client

	CORSOrigins     []string
	BodyLimit       string
	LoginRatePerMin int

	// MetricsRegisterer receives the HTTP request metrics. Defaults to the
	// global Prometheus registerer.
	MetricsRegisterer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)
	e.Validator = handler.NewValidator()

	bodyLimit := deps.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "50M"
	}
	registerer := deps.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "fiches",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(middleware.Authenticate(deps.Verifier))

	authHandler := handler.NewAuthHandler(deps.AuthService)
	recordHandler := handler.NewRecordHandler(deps.RecordService)
	streamHandler := handler.NewStreamHandler(deps.Registry, deps.CORSOrigins, deps.Logger.With().Str("component", "stream").Logger())
	healthHandler := handler.NewHealthHandler(deps.Mongo, deps.Redis, deps.Registry.Len)

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Welcome to the fiches API")
	})

	// --- Auth routes ---
	authGroup := e.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login, middleware.LoginRateLimit(deps.LoginRatePerMin))
	authGroup.GET("/me", authHandler.Me)

	// --- Record routes; the access policy is enforced by the record service ---
	records := e.Group("/records")
	records.GET("", recordHandler.List)
	records.POST("", recordHandler.Create)
	records.POST("/bulk", recordHandler.BulkCreate)
	records.GET("/search", recordHandler.Search)
	records.GET("/stats/added", recordHandler.Stats)
	records.GET("/:id", recordHandler.Get)
	records.PUT("/:id", recordHandler.Update)
	records.DELETE("/:id", recordHandler.Delete)
	records.PATCH("/:id/visibility", recordHandler.SetVisibility)
	records.PATCH("/:id/downloadable", recordHandler.SetDownloadable)

	// --- Push transports ---
	e.GET("/events", streamHandler.Events)
	e.GET("/events/ws", streamHandler.WebSocket)

	// --- Health probes (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
