package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/api"
	"github.com/kjannette/bsc-meme-trader/internal/bot"
	"github.com/kjannette/bsc-meme-trader/internal/config"
	"github.com/kjannette/bsc-meme-trader/internal/db"
	"github.com/kjannette/bsc-meme-trader/internal/ethereum"
	"github.com/kjannette/bsc-meme-trader/internal/external"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/notifications"
	"github.com/kjannette/bsc-meme-trader/internal/repository"
	"github.com/kjannette/bsc-meme-trader/internal/repository/sqlite"
	"github.com/kjannette/bsc-meme-trader/internal/risk"
	"github.com/kjannette/bsc-meme-trader/internal/scoring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const banner = `
╔══════════════════════════════════════╗
║       BSC Meme Trader v0.3           ║
║                                      ║
╚══════════════════════════════════════╝
`

// store is everything the loops and the API read and write.
type store interface {
	bot.Store
	api.Store
}

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, pinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Str("component", "db").Err(err).Msg("storage unavailable")
	}
	defer closeStore()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("unexpected failure")
			_ = st.SetState(context.Background(), models.StateError)
			os.Exit(1)
		}
	}()

	dex := external.NewDexScreenerClient(external.DexScreenerOptions{
		BaseURL:       cfg.DexScreenerBaseURL,
		Chain:         cfg.ChainName,
		WrappedNative: cfg.WBNBAddress,
	})

	log.Info().Str("component", "market").Float64("bnb_usd", dex.NativePrice(ctx)).Msg("BNB price")

	venue, closeVenue, err := openVenue(ctx, cfg, dex)
	if err != nil {
		log.Fatal().Str("component", "chain").Err(err).Msg("trading venue unavailable")
	}
	defer closeVenue()

	var scorer scoring.Scorer = scoring.NewRules()
	if cfg.ScoringStrategy == scoring.SourceModel {
		scorer = scoring.NewModel(external.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel))
	}

	notify := notifications.Multi{notifications.NewSender(cfg.WebhookURL, cfg.BotName)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notifications.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.BotName)
		if err != nil {
			log.Warn().Str("component", "notify").Err(err).Msg("telegram disabled")
		} else {
			notify = append(notify, tg)
		}
	}

	guardian := risk.NewGuardian(risk.Limits{
		MaxDailyTrades:    cfg.MaxDailyTrades,
		StopLossPercent:   cfg.StopLossPercent,
		TakeProfitPercent: cfg.TakeProfitPercent,
	}, risk.NewRateLimiter(cfg.MaxTradesPerWindow, cfg.RateWindow()), st)

	deps := bot.Deps{
		Market:   dex,
		Scorer:   scorer,
		Venue:    venue,
		Store:    st,
		Guardian: guardian,
		Notify:   notify,
		Locks:    bot.NewKeyedMutex(),
	}

	// An uncaught job failure is fatal: the status row says error and the
	// process exits non-zero.
	svc := bot.NewService(cfg, deps, func(job string, recovered any) {
		msg := fmt.Sprintf("FATAL: job %s crashed: %v", job, recovered)
		log.Error().Str("component", "bot").Str("job", job).Interface("panic", recovered).Msg("job crashed")
		notify.Send(msg)
		_ = st.SetState(context.Background(), models.StateError)
		os.Exit(1)
	})

	srv := api.NewServer(api.Options{
		Port:            cfg.APIPort,
		APIKey:          cfg.APIKey,
		CORSOrigin:      cfg.CORSAllowOrigin,
		Chain:           cfg.ChainName,
		DefaultSlippage: cfg.SlippagePercent,
		Uptime:          svc.Uptime,
		Jobs:            svc,
	}, svc.Trader(), st, dex, venue, pinger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("component", "api").Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		log.Fatal().Str("component", "bot").Err(err).Msg("start failed")
	}

	log.Info().Msg("all services started")

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("component", "api").Err(err).Msg("shutdown error")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
}

func openStore(ctx context.Context, cfg *config.Config) (store, api.Pinger, func(), error) {
	if cfg.StorageDriver == "sqlite" {
		log.Info().Str("component", "db").Str("path", cfg.SQLitePath).Msg("opening sqlite")
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	}

	log.Info().Str("component", "db").Msgf("connecting to %s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.TestConnection(pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := db.MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		pool.Close()
		log.Info().Str("component", "db").Msg("connection pool closed")
	}
	return repository.NewStore(pool), pool, closeFn, nil
}

func openVenue(ctx context.Context, cfg *config.Config, dex *external.DexScreenerClient) (bot.Venue, func(), error) {
	if cfg.PaperTradingEnabled {
		v := bot.NewPaperVenue(dex, cfg.PaperInitialBNB, cfg.PaperSlippagePercent, cfg.PaperSimulateGas)
		return v, func() {}, nil
	}

	client, err := ethereum.Dial(ctx, ethereum.ClientOptions{
		Endpoints:     cfg.RPCEndpoints(),
		PrivateKeyHex: cfg.PrivateKey,
		ChainID:       int64(cfg.ChainID),
		GasLimit:      cfg.GasLimit,
		GasMultiplier: cfg.GasMultiplier,
		FallbackGwei:  cfg.GasPriceGwei,
	})
	if err != nil {
		return nil, nil, err
	}
	swap, err := ethereum.NewPancakeSwap(client, ethereum.PancakeOptions{
		RouterAddress:  cfg.RouterAddress,
		FactoryAddress: cfg.FactoryAddress,
		WBNBAddress:    cfg.WBNBAddress,
		ExplorerTxURL:  cfg.ExplorerTxURL,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Info().Str("component", "chain").Str("endpoint", client.Endpoint()).Str("wallet", swap.WalletAddress()).Msg("connected")
	return swap, client.Close, nil
}
