package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/api"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/dispatch"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/genai"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/messaging"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/store"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/util"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/ycloud"
)

// DefaultStateDir is the default directory for agent state data
const DefaultStateDir = "/var/lib/agente"

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := validateConfiguration(flags); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	msgOpts := buildMessagingOptions(flags)
	dispatchOpts := buildDispatchOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping insurance agent with configured modules",
		"backend", *flags.backend, "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, msgOpts, dispatchOpts, apiOpts); err != nil {
		slog.Error("Agent failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	OpenAIModel  string
	YCloudKey    string
	APIAddr      string
	Backend      string
	WhatsmeowDSN string
	QueueSize    int
	Workers      int
	NumericLogin bool
	TwilioSID    string
	TwilioToken  string
	TwilioFrom   string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN        *string
	stateDir     *string
	openaiKey    *string
	openaiModel  *string
	ycloudKey    *string
	apiAddr      *string
	backend      *string
	whatsmeowDSN *string
	qrOutput     *string
	numeric      *bool
	queueSize    *int
	workers      *int
	twilioSID    *string
	twilioToken  *string
	twilioFrom   *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
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
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("AGENTE_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		YCloudKey:    os.Getenv("YCLOUD_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		Backend:      os.Getenv("MESSAGING_BACKEND"),
		WhatsmeowDSN: os.Getenv("WHATSMEOW_DB_DSN"),
		QueueSize:    util.ParseIntEnv("DISPATCH_QUEUE_SIZE", dispatch.DefaultQueueSize),
		Workers:      util.ParseIntEnv("DISPATCH_WORKERS", dispatch.DefaultWorkers),
		NumericLogin: util.ParseBoolEnv("WHATSMEOW_NUMERIC_LOGIN", false),
		TwilioSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:   os.Getenv("TWILIO_FROM_NUMBER"),
	}

	// PORT is the conventional hosting-platform variable; API_ADDR wins.
	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AGENTE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Backend == "" {
		config.Backend = messaging.BackendYCloud
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"YCLOUD_API_KEY_SET", config.YCloudKey != "",
		"MESSAGING_BACKEND", config.Backend,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation and directory store (overrides $DATABASE_URL)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for agent data (overrides $AGENTE_STATE_DIR)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:  flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		ycloudKey:    flag.String("ycloud-api-key", config.YCloudKey, "YCloud API key (overrides $YCLOUD_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR / $PORT)"),
		backend:      flag.String("messaging-backend", config.Backend, "messaging backend: ycloud, twilio or whatsmeow (overrides $MESSAGING_BACKEND)"),
		whatsmeowDSN: flag.String("whatsmeow-db-dsn", config.WhatsmeowDSN, "whatsmeow session database DSN (overrides $WHATSMEOW_DB_DSN)"),
		qrOutput:     flag.String("qr-output", "", "path to write whatsmeow login QR code"),
		numeric:      flag.Bool("numeric-code", config.NumericLogin, "use a numeric whatsmeow login code instead of a QR code"),
		queueSize:    flag.Int("queue-size", config.QueueSize, "dispatch queue capacity (overrides $DISPATCH_QUEUE_SIZE)"),
		workers:      flag.Int("workers", config.Workers, "dispatch worker count (overrides $DISPATCH_WORKERS)"),
		twilioSID:    flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:  flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:   flag.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
	}

	flag.Parse()
	return flags
}

// validateConfiguration verifies the required credentials for the selected
// backend are present before any module starts.
func validateConfiguration(flags Flags) error {
	if *flags.openaiKey == "" {
		return fmt.Errorf("required configuration missing: OPENAI_API_KEY")
	}
	if *flags.dbDSN == "" {
		return fmt.Errorf("required configuration missing: DATABASE_URL")
	}
	if *flags.backend == messaging.BackendYCloud && *flags.ycloudKey == "" {
		return fmt.Errorf("required configuration missing: YCLOUD_API_KEY")
	}
	if *flags.backend == messaging.BackendTwilio && (*flags.twilioSID == "" || *flags.twilioToken == "" || *flags.twilioFrom == "") {
		return fmt.Errorf("required configuration missing: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
	}
	return nil
}

// ensureDirectoriesExist creates the state directory when a file-based DSN
// is in use.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	dsnPath := strings.TrimPrefix(*flags.dbDSN, "file:")
	stateDir := filepath.Dir(dsnPath)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, 0755)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildMessagingOptions constructs messaging service configuration options
func buildMessagingOptions(flags Flags) []messaging.Option {
	msgOpts := []messaging.Option{messaging.WithBackend(*flags.backend)}
	switch *flags.backend {
	case messaging.BackendYCloud:
		if *flags.ycloudKey != "" {
			msgOpts = append(msgOpts, messaging.WithYCloudOptions(ycloud.WithAPIKey(*flags.ycloudKey)))
		}
	case messaging.BackendTwilio:
		msgOpts = append(msgOpts, messaging.WithTwilioCredentials(*flags.twilioSID, *flags.twilioToken, *flags.twilioFrom))
	case messaging.BackendWhatsmeow:
		if *flags.whatsmeowDSN != "" {
			msgOpts = append(msgOpts, messaging.WithWhatsmeowDBDSN(*flags.whatsmeowDSN))
		}
		if *flags.qrOutput != "" {
			msgOpts = append(msgOpts, messaging.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			msgOpts = append(msgOpts, messaging.WithNumericLogin())
		}
	}
	return msgOpts
}

// buildDispatchOptions constructs dispatcher configuration options
func buildDispatchOptions(flags Flags) []dispatch.Option {
	return []dispatch.Option{
		dispatch.WithQueueSize(*flags.queueSize),
		dispatch.WithWorkers(*flags.workers),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
