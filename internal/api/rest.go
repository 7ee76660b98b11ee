package api

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tubelens/tubelens/internal/api/runs"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/http/websocket"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes the server exposes and to manage
	// ongoing activity socket connections.
	RestGateway struct {
		*broadcaster
		config         *RestConfig
		ec             *echo.Echo
		socket         *websocket.SocketHub
		runsController *runs.Controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the run controller.
func NewRestGateway(config *RestConfig, db database.Manager, store runStore, scrapeService runs.ScrapeService) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:    newBroadcaster(socket, db, store),
		config:         config,
		ec:             ec,
		socket:         socket,
		runsController: runs.New(validate, db, store, scrapeService),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/tubelens/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	scrape := ec.Group("/api/tubelens/v1/scrape")
	gateway.runsController.SetScrapeRoutes(scrape)

	runGroup := ec.Group("/api/tubelens/v1/runs")
	gateway.runsController.SetRoutes(runGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Parent context cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
