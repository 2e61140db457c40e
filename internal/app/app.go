package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/marianozunino/cloudshare/internal/db"
	"github.com/marianozunino/cloudshare/internal/expiration"
	"github.com/marianozunino/cloudshare/internal/gallery"
	"github.com/marianozunino/cloudshare/internal/handler"
	"github.com/marianozunino/cloudshare/internal/identity"
	middie "github.com/marianozunino/cloudshare/internal/middleware"
	"github.com/marianozunino/cloudshare/internal/migration"
	"github.com/marianozunino/cloudshare/internal/share"
)

// App represents the application
type App struct {
	server  *echo.Echo
	sweeper *expiration.Sweeper
	config  *config.Config
	db      *db.DB
	handler *handler.Handler
}

// New creates a new application instance from the config file at configPath
func New(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	configData, err := json.MarshalIndent(redacted(cfg), "", "  ")
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration:\n%s", string(configData))
	if err := setup(cfg); err != nil {
		return nil, err
	}

	store, err := db.NewDB(cfg)
	if err != nil {
		log.Printf("Error: Failed to open metadata store: %v", err)
		return nil, err
	}
	if err := migrate(store); err != nil {
		store.Close()
		return nil, err
	}

	host, err := assethost.New(context.Background(), cfg.AssetHost)
	if err != nil {
		store.Close()
		return nil, err
	}

	var transformer *assethost.Transformer
	if cfg.AssetHost.Driver == config.DriverCloudinary {
		transformer = assethost.NewTransformer(cfg.AssetHost.DeliveryBase, cfg.AssetHost.CloudName)
	}

	shares := share.NewService(store, host, cfg.ShareBaseURL)
	galleries := gallery.NewService(store, host, cfg.AssetHost.Folder, cfg.StorageLimit)

	sweeper, err := expiration.NewSweeper(cfg, shares)
	if err != nil {
		log.Printf("Warning: Failed to initialize expired share sweeper: %v", err)
		store.Close()
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Uploads stream through to the asset host, so allow slow bodies
	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	log.Printf("Server timeouts configured: Read=%v, Write=%v, Idle=%v",
		e.Server.ReadTimeout, e.Server.WriteTimeout, e.Server.IdleTimeout)

	app := &App{
		server:  e,
		sweeper: sweeper,
		config:  cfg,
		db:      store,
		handler: handler.NewHandler(cfg, galleries, shares, transformer, sweeper),
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middie.SecurityHeaders())
	e.Use(middie.RequestMetrics())

	registerRoutes(e, app)
	return app, nil
}

// Start starts the application
func (a *App) Start() {
	if a.sweeper != nil {
		a.sweeper.Start()
	}

	serverAddr := fmt.Sprintf(":%d", a.config.Port)

	go func() {
		if err := a.server.Start(serverAddr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	log.Printf("Server started on %s", serverAddr)
}

// Stop stops all application services
func (a *App) Stop() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
}

// Shutdown gracefully shuts down the server
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Close releases the metadata store
func (a *App) Close() error {
	return a.db.Close()
}

// setup ensures the directory holding the metadata store exists
func setup(cfg *config.Config) error {
	return os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
}

func migrate(store *db.DB) error {
	m, err := migration.NewManagerWithDB(store.DB)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// redacted returns a copy of cfg that is safe to log
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	for _, secret := range []*string{&out.JWTSecret, &out.AdminToken, &out.AssetHost.APISecret, &out.AssetHost.S3.SecretKey} {
		if *secret != "" {
			*secret = "[redacted]"
		}
	}
	return out
}

// bodyLimit renders the upload size limit for echo's BodyLimit middleware
func bodyLimit(cfg *config.Config) string {
	return fmt.Sprintf("%dB", cfg.MaxSizeToBytes())
}

// registerRoutes registers all HTTP routes
func registerRoutes(e *echo.Echo, app *App) {
	e.Use(middleware.BodyLimit(bodyLimit(app.config)))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	verifier := identity.NewVerifier(app.config.JWTSecret)
	app.handler.Register(e,
		middie.Authenticate(verifier, app.db),
		middie.AdminOnly(app.config.AdminToken),
	)
}
