package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/internal/alerts"
	"github.com/tradewatch/tradewatch/internal/config"
	"github.com/tradewatch/tradewatch/internal/fetch"
	"github.com/tradewatch/tradewatch/internal/graphql"
	"github.com/tradewatch/tradewatch/internal/ingest"
	"github.com/tradewatch/tradewatch/internal/logging"
	"github.com/tradewatch/tradewatch/internal/metrics"
	"github.com/tradewatch/tradewatch/internal/secrets"
	"github.com/tradewatch/tradewatch/internal/store"
	"github.com/tradewatch/tradewatch/internal/token"
)

// app bundles the wired components every command needs.
type app struct {
	cfg       *config.Config
	loader    *config.Loader
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	store     store.Store
	sealer    *secrets.Sealer
	manager   *token.Manager
	connector *token.Connector
	runner    *ingest.Runner
	notifier  *alerts.Dispatcher
}

// buildApp loads config and constructs the component graph bottom-up.
func buildApp(flags GlobalFlags) (*app, error) {
	bootLog := logging.Setup("info", "console")

	loader := config.NewLoader(flags.Config, bootLog)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.Server.LogLevel
	if flags.Verbose {
		level = "debug"
	}
	logger := logging.Setup(level, cfg.Server.LogFormat)

	m := metrics.NewMetrics("tradewatch")

	encKey := cfg.Storage.EncryptionKey
	if encKey == "" {
		encKey, err = secrets.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate encryption key: %w", err)
		}
		logger.Warn().Msg("storage.encryption_key not set, using an ephemeral key; stored tokens will not survive a restart")
	}
	sealer, err := secrets.NewSealer(encKey)
	if err != nil {
		return nil, fmt.Errorf("init token sealer: %w", err)
	}

	dbPath := flags.DBPath
	if cfg.Storage.Path != "" && flags.DBPath == "./data/tradewatch.db" {
		dbPath = cfg.Storage.Path
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var sender alerts.Sender
	if cfg.Alerts.Enabled && cfg.Alerts.Telegram.Token != "" {
		tg, err := alerts.NewTelegramSender(cfg.Alerts.Telegram.Token, cfg.Alerts.Telegram.ChatID)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram sender unavailable, alerts will be log-only")
		} else {
			sender = tg
		}
	}
	notifier := alerts.NewDispatcher(cfg.Alerts, sender, logging.Component(logger, "alerts"))

	manager := token.NewManager(token.Options{
		Store:          st,
		Sealer:         sealer,
		Provider:       cfg.Provider,
		RefreshBuffer:  cfg.Tokens.RefreshBuffer,
		RequestTimeout: cfg.Tokens.RequestTimeout,
		Logger:         logging.Component(logger, "token"),
		Metrics:        m,
		Notifier:       notifier,
	})
	connector := token.NewConnector(st, sealer, cfg.Provider)

	client := graphql.NewClient(graphql.Options{
		Endpoint:    cfg.Provider.GraphQLURL,
		APIVersion:  cfg.Provider.APIVersion,
		MaxRetries:  cfg.Fetch.MaxRetries,
		BaseBackoff: cfg.Fetch.BaseBackoff,
		Timeout:     cfg.Tokens.RequestTimeout,
		Logger:      logging.Component(logger, "graphql"),
		Metrics:     m,
	})
	fetcher := fetch.NewFetcher(client, cfg.Fetch, logging.Component(logger, "fetch"), m)
	runner := ingest.NewRunner(manager, fetcher, cfg.Fetch.RecordCap, logging.Component(logger, "ingest"), m)

	return &app{
		cfg:       cfg,
		loader:    loader,
		logger:    logger,
		metrics:   m,
		store:     st,
		sealer:    sealer,
		manager:   manager,
		connector: connector,
		runner:    runner,
		notifier:  notifier,
	}, nil
}

func (a *app) Close() {
	a.loader.StopWatcher()
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("error closing store")
	}
}
