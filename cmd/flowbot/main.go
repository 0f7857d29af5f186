package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/surtifrio/flowbot/internal/api"
	"github.com/surtifrio/flowbot/internal/flow"
	"github.com/surtifrio/flowbot/internal/lockfile"
	"github.com/surtifrio/flowbot/internal/menu"
	"github.com/surtifrio/flowbot/internal/messaging"
	"github.com/surtifrio/flowbot/internal/orders"
	"github.com/surtifrio/flowbot/internal/recovery"
	"github.com/surtifrio/flowbot/internal/scheduler"
	"github.com/surtifrio/flowbot/internal/store"
	"github.com/surtifrio/flowbot/internal/twiliowhatsapp"
	"github.com/surtifrio/flowbot/internal/util"
	"github.com/surtifrio/flowbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for flowbot state data
	DefaultStateDir = "/var/lib/flowbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowbot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// ProviderWhatsmeow selects the direct WhatsApp transport
	ProviderWhatsmeow = "whatsmeow"
	// ProviderTwilio selects the Twilio WhatsApp Business API transport
	ProviderTwilio = "twilio"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping flowbot with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"provider", *flags.provider,
		"inactivity_timeout", *flags.inactivityTimeout)

	if err := run(flags); err != nil {
		slog.Error("flowbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("flowbot exited successfully")
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	// Messaging transport
	service, webhook, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer service.Stop()

	// Flow engine
	sessions := flow.NewSessionManager(st)
	closeOut := flow.NewCloseOutNotifier(service, sessions, st, flow.CloseOutConfig{
		Text:     *flags.closeOutText,
		MediaURL: *flags.closeOutMediaURL,
	})
	timers := flow.NewInactivityMonitor(*flags.inactivityTimeout, closeOut.CloseOut)
	defer timers.Shutdown()
	router := flow.NewRouter(sessions, timers, service, st)

	// Conversational menu
	menuCfg := buildMenuConfig(flags)
	materializer := orders.NewMaterializer(st, orders.WithCoordinator(menuCfg.Coordinator, menuCfg.CoordinatorPhone))
	if err := menu.New(menuCfg, materializer).RegisterAll(router); err != nil {
		return err
	}

	// Recurring maintenance jobs
	if *flags.reminderCron != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(*flags.reminderCron, scheduler.PendingOrderReminder(st, *flags.reminderMaxAge)); err != nil {
			return err
		}
		slog.Info("Pending-order reminder scheduled", "cron", *flags.reminderCron, "max_age", *flags.reminderMaxAge)
	}

	// Re-arm inactivity timers for conversations interrupted by a restart
	if rearmed, closed, err := recovery.NewRecoverer(st, timers, closeOut.CloseOut).RecoverTimers(); err != nil {
		slog.Warn("Timer recovery failed, continuing without re-armed timers", "error", err)
	} else if rearmed > 0 || closed > 0 {
		slog.Info("Recovered conversation timers", "rearmed", rearmed, "closed", closed)
	}

	// Inbound loop
	if err := service.Start(ctx); err != nil {
		return err
	}
	messaging.NewListener(service, router).Start(ctx)

	// Admin API
	server := api.NewServer(st, api.WithAddr(*flags.apiAddr))
	if webhook != nil {
		server.RegisterWebhook("POST /webhook/twilio", webhook)
	}
	return server.Start(ctx)
}

// openStore selects the persistent backend from the DSN shape.
func openStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Opening Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Opening SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildMessagingService constructs the configured transport. The second
// return value is a webhook handler to mount on the API server, or nil.
func buildMessagingService(flags Flags) (messaging.Service, http.HandlerFunc, error) {
	switch *flags.provider {
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(*flags.twilioSID),
			twiliowhatsapp.WithAuthToken(*flags.twilioToken),
			twiliowhatsapp.WithFromNumber(*flags.twilioFrom),
		)
		if err != nil {
			return nil, nil, err
		}
		service := messaging.NewTwilioService(client)
		return service, service.WebhookHandler, nil
	default:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}

// buildWhatsAppOptions constructs WhatsApp client options from flags
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var opts []whatsapp.Option
	if *flags.waDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	if *flags.qrOutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildMenuConfig overlays coordinator settings onto the stock menu.
func buildMenuConfig(flags Flags) menu.Config {
	cfg := menu.DefaultConfig()
	if *flags.coordinatorName != "" {
		cfg.Coordinator = *flags.coordinatorName
	}
	if *flags.coordinatorPhone != "" {
		cfg.CoordinatorPhone = *flags.coordinatorPhone
	}
	return cfg
}

// Config holds environment configuration
type Config struct {
	Provider          string
	DatabaseURL       string
	WhatsAppDSN       string
	StateDir          string
	APIAddr           string
	InactivityTimeout string
	ReminderCron      string
	CloseOutText      string
	CloseOutMediaURL  string
	TwilioSID         string
	TwilioToken       string
	TwilioFrom        string
	CoordinatorName   string
	CoordinatorPhone  string
}

// Flags holds command line flag values
type Flags struct {
	provider          *string
	qrOutput          *string
	numeric           *bool
	stateDir          *string
	dbDSN             *string
	waDSN             *string
	apiAddr           *string
	inactivityTimeout *time.Duration
	reminderCron      *string
	reminderMaxAge    *time.Duration
	closeOutText      *string
	closeOutMediaURL  *string
	twilioSID         *string
	twilioToken       *string
	twilioFrom        *string
	coordinatorName   *string
	coordinatorPhone  *string
}

// initializeLogger sets up structured logging; FLOWBOT_DEBUG toggles debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("FLOWBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Provider:          os.Getenv("MESSAGING_PROVIDER"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:          os.Getenv("FLOWBOT_STATE_DIR"),
		APIAddr:           os.Getenv("API_ADDR"),
		InactivityTimeout: os.Getenv("INACTIVITY_TIMEOUT"),
		ReminderCron:      os.Getenv("ORDER_REMINDER_CRON"),
		CloseOutText:      os.Getenv("CLOSEOUT_TEXT"),
		CloseOutMediaURL:  os.Getenv("CLOSEOUT_MEDIA_URL"),
		TwilioSID:         os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:        os.Getenv("TWILIO_FROM_NUMBER"),
		CoordinatorName:   os.Getenv("COORDINATOR_NAME"),
		CoordinatorPhone:  os.Getenv("COORDINATOR_PHONE"),
	}

	if config.Provider == "" {
		config.Provider = ProviderWhatsmeow
		slog.Debug("No MESSAGING_PROVIDER set, using default", "provider", config.Provider)
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
		slog.Debug("No WHATSAPP_DB_DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_PROVIDER", config.Provider,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"FLOWBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"INACTIVITY_TIMEOUT", config.InactivityTimeout,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	inactivityDefault := flow.DefaultInactivityDelay
	if config.InactivityTimeout != "" {
		if parsed, err := time.ParseDuration(config.InactivityTimeout); err == nil {
			inactivityDefault = parsed
		} else {
			slog.Warn("Invalid INACTIVITY_TIMEOUT, using default", "value", config.InactivityTimeout, "error", err)
		}
	}

	flags := Flags{
		provider:          flag.String("provider", config.Provider, "messaging provider: whatsmeow or twilio (overrides $MESSAGING_PROVIDER)"),
		qrOutput:          flag.String("qr-output", "", "path to write login QR code"),
		numeric:           flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for flowbot data (overrides $FLOWBOT_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN for the flowbot store (overrides $DATABASE_URL)"),
		waDSN:             flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		inactivityTimeout: flag.Duration("inactivity-timeout", inactivityDefault, "inactivity delay before close-out (overrides $INACTIVITY_TIMEOUT)"),
		reminderCron:      flag.String("order-reminder-cron", config.ReminderCron, "cron expression for the pending-order reminder, empty disables (overrides $ORDER_REMINDER_CRON)"),
		reminderMaxAge:    flag.Duration("order-reminder-max-age", 24*time.Hour, "age after which a pending order counts as stale"),
		closeOutText:      flag.String("closeout-text", config.CloseOutText, "close-out message text (overrides $CLOSEOUT_TEXT)"),
		closeOutMediaURL:  flag.String("closeout-media-url", config.CloseOutMediaURL, "close-out media URL (overrides $CLOSEOUT_MEDIA_URL)"),
		twilioSID:         flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:       flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:        flag.String("twilio-from-number", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		coordinatorName:   flag.String("coordinator-name", config.CoordinatorName, "coordinator name for order receipts (overrides $COORDINATOR_NAME)"),
		coordinatorPhone:  flag.String("coordinator-phone", config.CoordinatorPhone, "coordinator phone for order receipts (overrides $COORDINATOR_PHONE)"),
	}

	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates required directories for flowbot state
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0o755); err != nil {
		return err
	}
	slog.Debug("State directory ready", "path", *flags.stateDir)
	return nil
}
