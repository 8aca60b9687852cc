package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isqad/melody"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/clips"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/config"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/marklog"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/orchestrator"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/pairing"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/registry"
)

// AppOptions is options of the application
type AppOptions struct {
	Env    core.Environment
	Config *config.Config
	DB     *sqlx.DB

	websocket *melody.Melody
}

// App is the coordinator application: protocol server for camera peers
// plus the operator console.
type App struct {
	AppOptions

	peersRepo    core.PeersDBStorer
	sessionsRepo core.SessionsDBStorer

	authority    *pairing.Authority
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	markLog      *marklog.MarkLog
	pipeline     *clips.Pipeline

	dispatcher *Dispatcher
	relay      *browseRelay

	// elapsedMs mirrors the orchestrator's 1-second duration ticks for
	// console consumption.
	elapsedMs atomic.Int64
}

func New(options AppOptions) *App {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 200 * 1024 // 200K

	app := &App{
		AppOptions: options,
	}

	app.peersRepo = core.NewPeersRepository(options.DB)
	app.sessionsRepo = core.NewSessionsRepository(options.DB)
	marksRepo := core.NewMarksRepository(options.DB)
	clipsRepo := core.NewClipsRepository(options.DB)
	tokensRepo := core.NewTokensRepository(options.DB)

	app.authority = pairing.NewAuthority(tokensRepo, app.peersRepo)
	app.registry = registry.NewRegistry(app.peersRepo)
	app.orchestrator = orchestrator.NewOrchestrator(app.sessionsRepo, app.registry)
	app.markLog = marklog.NewMarkLog(marksRepo, app.orchestrator, app.registry)
	app.pipeline = clips.NewPipeline(clipsRepo, app.orchestrator, app.registry, options.Config.App.StorageRoot)

	app.relay = newBrowseRelay()
	app.dispatcher = NewDispatcher(
		app.authority,
		app.registry,
		app.orchestrator,
		app.markLog,
		app.pipeline,
		app.peersRepo,
		app.relay,
	)

	app.orchestrator.SetOnTick(func(id core.SessionID, elapsed time.Duration) {
		app.elapsedMs.Store(elapsed.Milliseconds())
	})

	return app
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()

	if err := core.Migrate(app.DB); err != nil {
		return err
	}
	if err := app.reloadSoftState(); err != nil {
		return err
	}

	router := app.initRouter()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Config.App.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
	}

	// periodic pings feed the per-peer clock offset estimate
	clockTicker := time.NewTicker(15 * time.Second)
	go func() {
		for {
			select {
			case <-clockTicker.C:
				app.registry.Broadcast(protocol.NewPing("", time.Now().UnixMilli()))
			case <-done:
				clockTicker.Stop()
				return
			}
		}
	}()

	stopDiscovery, err := app.startDiscovery()
	if err != nil {
		// the coordinator is still reachable by address, keep going
		log.Error().Err(err).Str("service", "server").Msg("mDNS advertisement failed")
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		if stopDiscovery != nil {
			stopDiscovery()
		}
		log.Info().Msg("all services are stopped")
		close(done)
	})

	// Shutdown the HTTP server
	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	log.Info().Str("service", "server").Str("address", app.Config.App.Address).Msg("coordinator listening")

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

func (app *App) initLogger() {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel

	if app.Env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

// reloadSoftState pulls the current session and its marks back into
// memory after a restart. Live peer connections are never reloaded,
// peers re-announce on their own.
func (app *App) reloadSoftState() error {
	if err := app.orchestrator.Reload(); err != nil {
		return err
	}

	if current := app.orchestrator.Current(); current != nil {
		if err := app.markLog.Reload(current.ID); err != nil {
			return err
		}
	}

	return nil
}

// initRouter is function for construct http router
func (app *App) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	app.websocket.HandleConnect(ConnectHandler())
	app.websocket.HandleDisconnect(DisconnectHandler(app.registry))
	app.websocket.HandleMessage(app.dispatcher.HandleMessage)
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "ws").Msg("error in websocket session")
	})

	r.Get("/ws", WsHandler(app.websocket))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Mount("/api/v1", app.consoleRouter())

	return r
}
