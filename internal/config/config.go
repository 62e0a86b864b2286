package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Secrets (from .env)
	PrivateKey      string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	TelegramToken   string `yaml:"-"`
	WebhookURL      string `yaml:"webhook_url"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
	BotName         string `yaml:"bot_name"`
	APIKey          string `yaml:"-"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`
	APIPort         int    `yaml:"api_port"`

	// Storage
	StorageDriver string `yaml:"storage_driver"` // postgres | sqlite
	SQLitePath    string `yaml:"sqlite_path"`
	DBHost        string `yaml:"db_host"`
	DBPort        int    `yaml:"db_port"`
	DBName        string `yaml:"db_name"`
	DBUser        string `yaml:"db_user"`
	DBPassword    string `yaml:"-"`

	// Chain
	RPCURL          string   `yaml:"rpc_url"`
	RPCFallbackURLs []string `yaml:"rpc_fallback_urls"`
	ChainID         int      `yaml:"chain_id"`
	ChainName       string   `yaml:"chain_name"`
	RouterAddress   string   `yaml:"router_address"`
	FactoryAddress  string   `yaml:"factory_address"`
	WBNBAddress     string   `yaml:"wbnb_address"`
	GasLimit        int      `yaml:"gas_limit"`
	GasPriceGwei    float64  `yaml:"gas_price_gwei"` // used when the node cannot suggest a price
	GasMultiplier   float64  `yaml:"gas_multiplier"`
	ExplorerTxURL   string   `yaml:"explorer_tx_url"`

	// Market data
	DexScreenerBaseURL   string `yaml:"dexscreener_base_url"`
	MaxCandidatesPerScan int    `yaml:"max_candidates_per_scan"`
	TokenPacingMillis    int    `yaml:"token_pacing_ms"`

	// Scoring
	ScoringStrategy string `yaml:"scoring_strategy"` // rules | model
	AnthropicModel  string `yaml:"anthropic_model"`
	MinScoreToBuy   int    `yaml:"min_score_to_buy"`

	// Filters
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`
	MinMarketCapUSD float64 `yaml:"min_market_cap_usd"`
	MaxMarketCapUSD float64 `yaml:"max_market_cap_usd"`

	// Trading
	MinTradeBNB          float64 `yaml:"min_trade_bnb"`
	MaxTradeBNB          float64 `yaml:"max_trade_bnb"`
	TradeBalanceFraction float64 `yaml:"trade_balance_fraction"`
	GasReserveBNB        float64 `yaml:"gas_reserve_bnb"`
	SlippagePercent      float64 `yaml:"slippage_percent"`
	MaxPriceImpactPct    float64 `yaml:"max_price_impact_percent"` // 0 = disabled
	StopLossPercent      float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent    float64 `yaml:"take_profit_percent"`

	// Risk
	MaxTradesPerWindow int `yaml:"max_trades_per_window"`
	RateWindowSeconds  int `yaml:"rate_window_seconds"`
	MaxDailyTrades     int `yaml:"max_daily_trades"` // 0 = disabled
	MaxBuyAttempts     int `yaml:"max_buy_attempts"`
	ExitMaxAttempts    int `yaml:"exit_max_attempts"`
	ExitRetryBaseSecs  int `yaml:"exit_retry_base_seconds"`
	ExitRetryMaxSecs   int `yaml:"exit_retry_max_seconds"`

	// Paper Trading
	PaperTradingEnabled  bool    `yaml:"paper_trading_enabled"`
	PaperInitialBNB      float64 `yaml:"paper_initial_bnb"`
	PaperSlippagePercent float64 `yaml:"paper_slippage_percent"`
	PaperSimulateGas     bool    `yaml:"paper_simulate_gas"`

	// Timing
	PositionCheckSeconds int `yaml:"position_check_seconds"`
	TokenScanSeconds     int `yaml:"token_scan_seconds"`
	StatsUpdateSeconds   int `yaml:"stats_update_seconds"`
	BalanceCheckSeconds  int `yaml:"balance_check_seconds"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text | json
}

// Defaults returns the built-in configuration before any file or env overlay.
func Defaults() *Config {
	return &Config{
		BotName:         "MemeKing",
		CORSAllowOrigin: "*",
		APIPort:         3001,

		StorageDriver: "postgres",
		SQLitePath:    "meme_trader.db",
		DBHost:        "localhost",
		DBPort:        5432,
		DBName:        "meme_trader",

		RPCURL:          "https://bsc-dataseed1.binance.org",
		RPCFallbackURLs: []string{"https://bsc-dataseed2.binance.org", "https://rpc.ankr.com/bsc"},
		ChainID:         56,
		ChainName:       "bsc",
		RouterAddress:   "0x10ED43C718714eb63d5aA57B78B54704E256024E",
		FactoryAddress:  "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73",
		WBNBAddress:     "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
		GasLimit:        300000,
		GasPriceGwei:    5,
		GasMultiplier:   1.0,
		ExplorerTxURL:   "https://bscscan.com/tx/",

		DexScreenerBaseURL:   "https://api.dexscreener.com/latest/dex",
		MaxCandidatesPerScan: 20,
		TokenPacingMillis:    2000,

		ScoringStrategy: "rules",
		AnthropicModel:  "claude-sonnet-4-20250514",
		MinScoreToBuy:   60,

		MinLiquidityUSD: 1000,
		MinMarketCapUSD: 5000,
		MaxMarketCapUSD: 500000,

		MinTradeBNB:          0.01,
		MaxTradeBNB:          0.05,
		TradeBalanceFraction: 0.10,
		GasReserveBNB:        0.01,
		SlippagePercent:      15,
		MaxPriceImpactPct:    10,
		StopLossPercent:      -25,
		TakeProfitPercent:    50,

		MaxTradesPerWindow: 2,
		RateWindowSeconds:  60,
		MaxDailyTrades:     0,
		MaxBuyAttempts:     3,
		ExitMaxAttempts:    5,
		ExitRetryBaseSecs:  30,
		ExitRetryMaxSecs:   600,

		PaperTradingEnabled:  true,
		PaperInitialBNB:      1.0,
		PaperSlippagePercent: 2,
		PaperSimulateGas:     true,

		PositionCheckSeconds: 30,
		TokenScanSeconds:     60,
		StatsUpdateSeconds:   60,
		BalanceCheckSeconds:  10,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds the config from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables (.env is loaded first).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	// Secrets
	c.PrivateKey = envStr("PRIVATE_KEY", c.PrivateKey)
	c.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.TelegramToken = envStr("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.TelegramChatID = int64(envInt("TELEGRAM_CHAT_ID", int(c.TelegramChatID)))
	c.WebhookURL = envStr("WEBHOOK_URL", c.WebhookURL)
	c.BotName = envStr("BOT_NAME", c.BotName)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)
	c.APIPort = envInt("PORT", c.APIPort)

	// Storage
	c.StorageDriver = strings.ToLower(envStr("STORAGE_DRIVER", c.StorageDriver))
	c.SQLitePath = envStr("SQLITE_PATH", c.SQLitePath)
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envInt("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPassword = envStr("DB_PASSWORD", c.DBPassword)

	// Chain
	c.RPCURL = envStr("RPC_URL", c.RPCURL)
	c.RPCFallbackURLs = envList("RPC_FALLBACK_URLS", c.RPCFallbackURLs)
	c.ChainID = envInt("CHAIN_ID", c.ChainID)
	c.RouterAddress = envStr("ROUTER_ADDRESS", c.RouterAddress)
	c.FactoryAddress = envStr("FACTORY_ADDRESS", c.FactoryAddress)
	c.WBNBAddress = envStr("WBNB_ADDRESS", c.WBNBAddress)
	c.GasLimit = envInt("GAS_LIMIT", c.GasLimit)
	c.GasPriceGwei = envFloat("GAS_PRICE_GWEI", c.GasPriceGwei)
	c.GasMultiplier = envFloat("GAS_MULTIPLIER", c.GasMultiplier)

	// Market data
	c.DexScreenerBaseURL = envStr("DEXSCREENER_BASE_URL", c.DexScreenerBaseURL)
	c.MaxCandidatesPerScan = envInt("MAX_CANDIDATES_PER_SCAN", c.MaxCandidatesPerScan)
	c.TokenPacingMillis = envInt("TOKEN_PACING_MS", c.TokenPacingMillis)

	// Scoring
	c.ScoringStrategy = strings.ToLower(envStr("SCORING_STRATEGY", c.ScoringStrategy))
	if envBool("USE_CLAUDE", false) {
		c.ScoringStrategy = "model"
	}
	c.AnthropicModel = envStr("ANTHROPIC_MODEL", c.AnthropicModel)
	c.MinScoreToBuy = envInt("MIN_SCORE_TO_BUY", c.MinScoreToBuy)

	// Filters
	c.MinLiquidityUSD = envFloat("MIN_LIQUIDITY", c.MinLiquidityUSD)
	c.MinMarketCapUSD = envFloat("MIN_MC", c.MinMarketCapUSD)
	c.MaxMarketCapUSD = envFloat("MAX_MC", c.MaxMarketCapUSD)

	// Trading
	c.MinTradeBNB = envFloat("MIN_TRADE_BNB", c.MinTradeBNB)
	c.MaxTradeBNB = envFloat("MAX_TRADE_BNB", c.MaxTradeBNB)
	c.TradeBalanceFraction = envFloat("TRADE_BALANCE_FRACTION", c.TradeBalanceFraction)
	c.GasReserveBNB = envFloat("GAS_RESERVE_BNB", c.GasReserveBNB)
	c.SlippagePercent = envFloat("SLIPPAGE", c.SlippagePercent)
	c.MaxPriceImpactPct = envFloat("MAX_PRICE_IMPACT_PERCENT", c.MaxPriceImpactPct)
	c.StopLossPercent = envFloat("STOP_LOSS_PERCENT", c.StopLossPercent)
	c.TakeProfitPercent = envFloat("TAKE_PROFIT_PERCENT", c.TakeProfitPercent)

	// Risk
	c.MaxTradesPerWindow = envInt("MAX_TRADES_PER_WINDOW", c.MaxTradesPerWindow)
	c.RateWindowSeconds = envInt("RATE_WINDOW_SECONDS", c.RateWindowSeconds)
	c.MaxDailyTrades = envInt("MAX_DAILY_TRADES", c.MaxDailyTrades)
	c.MaxBuyAttempts = envInt("MAX_BUY_ATTEMPTS", c.MaxBuyAttempts)
	c.ExitMaxAttempts = envInt("EXIT_MAX_ATTEMPTS", c.ExitMaxAttempts)
	c.ExitRetryBaseSecs = envInt("EXIT_RETRY_BASE_SECONDS", c.ExitRetryBaseSecs)
	c.ExitRetryMaxSecs = envInt("EXIT_RETRY_MAX_SECONDS", c.ExitRetryMaxSecs)

	// Paper Trading
	c.PaperTradingEnabled = envBool("PAPER_TRADING_ENABLED", c.PaperTradingEnabled)
	c.PaperInitialBNB = envFloat("PAPER_INITIAL_BNB", c.PaperInitialBNB)
	c.PaperSlippagePercent = envFloat("PAPER_SLIPPAGE_PERCENT", c.PaperSlippagePercent)
	c.PaperSimulateGas = envBool("PAPER_SIMULATE_GAS", c.PaperSimulateGas)

	// Timing
	c.PositionCheckSeconds = envInt("POSITION_CHECK_INTERVAL", c.PositionCheckSeconds)
	c.TokenScanSeconds = envInt("TOKEN_SCAN_INTERVAL", c.TokenScanSeconds)
	c.StatsUpdateSeconds = envInt("STATS_UPDATE_INTERVAL", c.StatsUpdateSeconds)
	c.BalanceCheckSeconds = envInt("BALANCE_CHECK_INTERVAL", c.BalanceCheckSeconds)

	// Logging
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
}

// Validate returns every fatal problem at once; soft issues are printed as warnings.
func (c *Config) Validate() error {
	var errs []string

	if !c.PaperTradingEnabled && c.PrivateKey == "" {
		errs = append(errs, "PRIVATE_KEY is required for live trading")
	}
	if c.RPCURL == "" {
		errs = append(errs, "RPC_URL is required")
	}
	if c.StorageDriver != "postgres" && c.StorageDriver != "sqlite" {
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be postgres or sqlite, got %q", c.StorageDriver))
	}
	if c.ScoringStrategy != "rules" && c.ScoringStrategy != "model" {
		errs = append(errs, fmt.Sprintf("SCORING_STRATEGY must be rules or model, got %q", c.ScoringStrategy))
	}
	if c.MinTradeBNB <= 0 || c.MaxTradeBNB < c.MinTradeBNB {
		errs = append(errs, fmt.Sprintf("invalid trade size bounds: min %.4f max %.4f", c.MinTradeBNB, c.MaxTradeBNB))
	}
	if c.StopLossPercent >= 0 {
		errs = append(errs, "STOP_LOSS_PERCENT must be negative")
	}
	if c.TakeProfitPercent <= 0 {
		errs = append(errs, "TAKE_PROFIT_PERCENT must be positive")
	}
	if c.SlippagePercent < 0 || c.SlippagePercent >= 100 {
		errs = append(errs, "SLIPPAGE must be in [0, 100)")
	}
	if c.MaxPriceImpactPct < 0 {
		errs = append(errs, "MAX_PRICE_IMPACT_PERCENT must not be negative")
	}
	if c.MaxTradesPerWindow <= 0 || c.RateWindowSeconds <= 0 {
		errs = append(errs, "MAX_TRADES_PER_WINDOW and RATE_WINDOW_SECONDS must be positive")
	}
	if c.MaxBuyAttempts <= 0 || c.ExitMaxAttempts <= 0 {
		errs = append(errs, "MAX_BUY_ATTEMPTS and EXIT_MAX_ATTEMPTS must be positive")
	}

	if c.ScoringStrategy == "model" && c.AnthropicAPIKey == "" {
		fmt.Println("[WARN] SCORING_STRATEGY=model but ANTHROPIC_API_KEY not set, falling back to rule scoring")
		c.ScoringStrategy = "rules"
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set, REST API has no authentication")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		fmt.Println("[WARN] TELEGRAM_BOT_TOKEN set without TELEGRAM_CHAT_ID, Telegram alerts disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== BSC Meme Trader Configuration ===")

	if c.PaperTradingEnabled {
		fmt.Println("════════════════════════════════════════")
		fmt.Println("  PAPER TRADING MODE ENABLED")
		fmt.Println("  No real transactions will execute")
		fmt.Println("════════════════════════════════════════")
		fmt.Printf("Paper Initial BNB: %.4f\n", c.PaperInitialBNB)
		fmt.Printf("Paper Slippage: 0-%.1f%%\n", c.PaperSlippagePercent)
	} else {
		fmt.Println("  LIVE TRADING MODE")
	}

	fmt.Println("--------------------------------------")
	fmt.Printf("Chain: %s (id %d)\n", c.ChainName, c.ChainID)
	fmt.Printf("RPC: %s (+%d fallbacks)\n", c.RPCURL, len(c.RPCFallbackURLs))
	fmt.Printf("Router: %s...\n", truncAddr(c.RouterAddress))
	fmt.Printf("Storage: %s\n", c.StorageDriver)
	fmt.Println("--------------------------------------")
	fmt.Println("Trading:")
	fmt.Printf("  Scoring: %s (min score %d)\n", c.ScoringStrategy, c.MinScoreToBuy)
	fmt.Printf("  Size: %.3f-%.3f BNB (%.0f%% of balance)\n", c.MinTradeBNB, c.MaxTradeBNB, c.TradeBalanceFraction*100)
	fmt.Printf("  Stop-loss: %.0f%% | Take-profit: +%.0f%%\n", c.StopLossPercent, c.TakeProfitPercent)
	fmt.Printf("  Slippage: %.0f%%\n", c.SlippagePercent)
	fmt.Printf("  Rate limit: %d trades / %ds\n", c.MaxTradesPerWindow, c.RateWindowSeconds)
	fmt.Printf("  Filters: liquidity >= $%.0f, MC $%.0f-$%.0f\n", c.MinLiquidityUSD, c.MinMarketCapUSD, c.MaxMarketCapUSD)
	fmt.Println("--------------------------------------")
	fmt.Printf("Notifications: webhook %s, telegram %s\n",
		boolLabel(c.WebhookURL != "", "on", "off"),
		boolLabel(c.TelegramToken != "" && c.TelegramChatID != 0, "on", "off"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

func (c *Config) TokenPacing() time.Duration {
	return time.Duration(c.TokenPacingMillis) * time.Millisecond
}

// RPCEndpoints returns the primary RPC followed by the fallbacks.
func (c *Config) RPCEndpoints() []string {
	out := make([]string, 0, 1+len(c.RPCFallbackURLs))
	out = append(out, c.RPCURL)
	for _, u := range c.RPCFallbackURLs {
		if u != "" && u != c.RPCURL {
			out = append(out, u)
		}
	}
	return out
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
