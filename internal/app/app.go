package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/internal/pingate"
	"github.com/aussiebroadwan/authsession/internal/reachability"
	"github.com/aussiebroadwan/authsession/internal/session"
	"github.com/aussiebroadwan/authsession/internal/store"
	"github.com/aussiebroadwan/authsession/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/authsession/internal/verification"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/idx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// RedirectMethods are dispatched through the backend's auth url.
var RedirectMethods = []domain.AuthMethod{
	domain.MethodBankID,
	domain.MethodPhotoID,
	domain.MethodMonobank,
	domain.MethodPrivatbank,
}

// Application owns the persisted session and everything wired around it.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	deviceID string
	pepper   string

	api     *identityapi.Client
	monitor *reachability.Monitor
	session *session.Coordinator
}

// New validates cfg, opens the store and restores the session. Pending
// logouts from an earlier run are resumed once the backend is reachable.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authsession",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initDevice(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.pepper = pepper

	app.api = identityapi.New(cfg.IdentityBaseURL,
		identityapi.WithTimeout(cfg.IdentityTimeout),
		identityapi.WithHeaders(cfg.IdentityHeaders),
		identityapi.WithRateLimit(cfg.IdentityRateLimit, burstFor(cfg.IdentityRateLimit)),
		identityapi.WithLogger(app.logger),
	)

	// Unreachable until the first probe answers, so a cold start offline
	// keeps resumed logouts waiting.
	app.monitor = reachability.NewMonitor(
		reachability.HTTPProber{URL: cfg.probeURL()},
		app.logger.With("component", "reachability"),
		cfg.ReachabilityInterval,
		false,
	)
	app.monitor.Start()

	coord, err := session.New(ctx, session.Config{
		Store:              app.db,
		UserAPI:            app.api,
		ServiceAPI:         app.api,
		Connectivity:       app.monitor,
		DeviceID:           app.deviceID,
		Pepper:             app.pepper,
		PincodePromptAfter: cfg.PincodePromptAfter,
		Observer:           stateLogger{logger: app.logger},
		Logger:             app.logger.With("component", "session"),
	})
	if err != nil {
		app.monitor.Stop()
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	app.session = coord

	app.logger.Info("session restored", "state", coord.State().String(), "version", BuildVersion)
	return app, nil
}

// Shutdown waits for in-flight logouts up to the grace period, then stops
// the monitor and closes the store.
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.session.Flush(ctx); err != nil {
		app.logger.Warn("pending logout not finished, resumed on next start", "error", err)
	}

	app.monitor.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func (app *Application) Logger() *slog.Logger           { return app.logger }
func (app *Application) Session() *session.Coordinator  { return app.session }
func (app *Application) API() *identityapi.Client       { return app.api }
func (app *Application) Monitor() *reachability.Monitor { return app.monitor }
func (app *Application) DeviceID() string               { return app.deviceID }
func (app *Application) Store() store.Store             { return app.db }

// initDatabase opens the sqlite store and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database migrations applied")
	return nil
}

// initDevice loads the device id, generating and storing one on first run.
func (app *Application) initDevice(ctx context.Context) error {
	id, err := app.db.Device().GetDeviceID(ctx)
	if err == nil {
		app.deviceID = id
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load device id: %w", err)
	}

	id = idx.NewDeviceID()
	if err := app.db.Device().SetDeviceID(ctx, id); err != nil {
		return fmt.Errorf("failed to store device id: %w", err)
	}
	app.deviceID = id
	app.logger.Info("device id generated", "device_id", id)
	return nil
}

// EnterGate builds the pincode entry gate for flow. bio may be nil.
func (app *Application) EnterGate(flow domain.GateFlow, delegate pingate.EnterDelegate, bio pingate.Biometry) *pingate.Enterer {
	return pingate.NewEnterer(pingate.EnterConfig{
		Flow:     flow,
		Length:   app.cfg.PincodeLength,
		Checker:  app.session,
		Attempts: app.db.Attempts(),
		Delegate: delegate,
		Biometry: bio,
		Settings: app.db.Pincode(),
		Logger:   app.logger.With("component", "pingate"),
	})
}

// CreateGate builds the new pincode flow. A confirmed pincode is stored.
func (app *Application) CreateGate(interrupts domain.InterruptHandler) *pingate.Creator {
	return pingate.NewCreator(pingate.CreateConfig{
		Length:     app.cfg.PincodeLength,
		OnCreated:  app.session.SetPincode,
		Interrupts: interrupts,
	})
}

// ChangeGate builds the change pincode flow.
func (app *Application) ChangeGate(interrupts domain.InterruptHandler, onWrongOld func()) *pingate.Changer {
	return pingate.NewChanger(pingate.ChangeConfig{
		Length:     app.cfg.PincodeLength,
		Checker:    app.session,
		OnCreated:  app.session.SetPincode,
		Interrupts: interrupts,
		OnWrongOld: onWrongOld,
	})
}

// VerificationOptions customises the orchestrator built by Verification.
type VerificationOptions struct {
	// Opener shows auth urls. Without one no redirect method is offered.
	Opener verification.Opener

	// BankID selects a specific bank for bankId redirects.
	BankID string

	Selector     verification.MethodSelector
	Interrupts   domain.InterruptHandler
	OnTransition func(verification.State)

	// Performers add or replace performers, for example for nfc.
	Performers map[domain.AuthMethod]verification.Performer
}

// Verification builds an orchestrator over the application's session.
func (app *Application) Verification(opts VerificationOptions) (*verification.Orchestrator, error) {
	performers := map[domain.AuthMethod]verification.Performer{}
	if opts.Opener != nil {
		redirect := &verification.RedirectPerformer{
			API:        app.api,
			Tokens:     app.session,
			Opener:     opts.Opener,
			BankID:     opts.BankID,
			Interrupts: opts.Interrupts,
		}
		for _, m := range RedirectMethods {
			performers[m] = redirect
		}
	}
	maps.Copy(performers, opts.Performers)

	return verification.New(verification.Config{
		API:          app.api,
		Session:      app.session,
		Performers:   performers,
		Selector:     opts.Selector,
		Interrupts:   opts.Interrupts,
		OnTransition: opts.OnTransition,
		Logger:       app.logger.With("component", "verification"),
	})
}

// burstFor allows one second worth of requests at once.
func burstFor(rps float64) int {
	return max(1, int(math.Ceil(rps)))
}

type stateLogger struct {
	logger *slog.Logger
}

func (s stateLogger) LoginDidFinish(state domain.AuthState) {
	s.logger.Info("login finished", "state", state.String())
}

func (s stateLogger) LogoutDidFinish() {
	s.logger.Info("logout finished")
}
