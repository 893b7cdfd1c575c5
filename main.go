package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"codecollab-server/collab"
	"codecollab-server/config"
	"codecollab-server/core"
	"codecollab-server/execution"
	"codecollab-server/handlers/api/rooms"
	"codecollab-server/handlers/api/run"
	"codecollab-server/handlers/websocket"
	"codecollab-server/stores"
)

func setupRouter(cfg *config.Config, engine *collab.Engine, store core.ArtifactStore, runner execution.Runner) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "Hello from the server!")
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", rooms.HandleList(engine))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", rooms.HandleGet(engine))
			r.Get("/run", run.HandleRun(store, engine, runner))
		})
	})
	r.Get("/compile", run.HandleRun(store, engine, runner))

	return r
}

func waitForShutdown(ioo *socketio.Server, store core.ArtifactStore) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	ioo.Close(nil)
	if err := stores.Close(store); err != nil {
		logrus.WithError(err).Error("Failed to close storage")
	}
	os.Exit(0)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := flag.String("loglevel", cfg.LogLevel, "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", cfg.ListenAddr, "Set the server listen address")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store := stores.GetStore(cfg)
	runner := execution.NewLocalRunner(execution.Toolchain{
		CPPCompiler:       cfg.CPPCompiler,
		CCompiler:         cfg.CCompiler,
		PythonInterpreter: cfg.PythonInterpreter,
		TempDir:           cfg.RunTempDir,
	}, cfg.RunTimeout)

	socketOpts := websocket.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		LegacyEvents:   cfg.LegacyEvents,
		FetchTimeout:   cfg.FetchTimeout,
	}
	ioo := websocket.NewSocketIOServer(socketOpts)
	socketTransport := websocket.NewSocketTransport(ioo, socketOpts)
	hub := websocket.NewHub()
	engine := collab.NewEngine(collab.NewMultiTransport(socketTransport, hub), store)
	websocket.BindSocketIO(ioo, socketTransport, engine)

	r := setupRouter(cfg, engine, store, runner)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))
	r.Get("/ws", hub.ServeWs(engine))

	logrus.WithFields(logrus.Fields{
		"addr":          *listenAddr,
		"legacy_events": cfg.LegacyEvents,
	}).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddr, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, store)
}
