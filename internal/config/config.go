package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/engine"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/recovery"
	"github.com/chimera-labs/chimera-operator/internal/trading"
)

// Config holds all bot configuration
type Config struct {
	Wallet     WalletConfig     `mapstructure:"wallet"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Fees       FeesConfig       `mapstructure:"fees"`
	Jupiter    JupiterConfig    `mapstructure:"jupiter"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Blockchain BlockchainConfig `mapstructure:"blockchain"`
	Storage    StorageConfig    `mapstructure:"storage"`
	TUI        TUIConfig        `mapstructure:"tui"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Queue          QueueConfig          `mapstructure:"queue"`
	TokenSafety    TokenSafetyConfig    `mapstructure:"token_safety"`
	Consensus      ConsensusConfig      `mapstructure:"consensus"`
	ExitDetector   ExitDetectorConfig   `mapstructure:"exit_detector"`
	Recovery       RecoveryConfig       `mapstructure:"recovery"`
	Roster         RosterConfig         `mapstructure:"roster"`
	Engine         EngineConfig         `mapstructure:"engine"`
	Tip            TipConfigYAML        `mapstructure:"tip"`
}

type CircuitBreakerConfig struct {
	ConsecutiveFailureThreshold int     `mapstructure:"consecutive_failure_threshold"`
	LossThresholdLamports       int64   `mapstructure:"loss_threshold_lamports"`
	CooldownSeconds             int     `mapstructure:"cooldown_seconds"`
	HalfOpenProbeBudget         int     `mapstructure:"half_open_probe_budget"`
	HalfOpenSuccessesToClose    int     `mapstructure:"half_open_successes_to_close"`
}

type QueueConfig struct {
	Capacity                  int     `mapstructure:"capacity"`
	SpearShedThresholdPercent float64 `mapstructure:"spear_shed_threshold_percent"`
}

type TokenSafetyConfig struct {
	CacheCapacity   int      `mapstructure:"cache_capacity"`
	CacheTTLSeconds int      `mapstructure:"cache_ttl_seconds"`
	StableMints     []string `mapstructure:"stable_mints"`
}

type ConsensusConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MinLeaders    int `mapstructure:"min_leaders"`
}

type ExitDetectorConfig struct {
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
}

type RecoveryConfig struct {
	IntervalSeconds           int `mapstructure:"interval_seconds"`
	StalenessThresholdSeconds int `mapstructure:"staleness_threshold_seconds"`
	MaxIndeterminateAttempts  int `mapstructure:"max_indeterminate_attempts"`
}

type RosterConfig struct {
	InputPath string `mapstructure:"input_path"`
}

type EngineConfig struct {
	MaxConcurrentExecutions int64 `mapstructure:"max_concurrent_executions"`
}

type TipConfigYAML struct {
	ExitTipSOL      float64 `mapstructure:"exit_tip_sol"`
	ConsensusTipSOL float64 `mapstructure:"consensus_tip_sol"`
	StandardTipSOL  float64 `mapstructure:"standard_tip_sol"`
}

type WalletConfig struct {
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	BaseMint      string `mapstructure:"base_mint"`
}

type RPCConfig struct {
	ShyftURL          string `mapstructure:"shyft_url"`
	ShyftAPIKeyEnv    string `mapstructure:"shyft_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
}

type TradingConfig struct {
	MinEntryPercent       float64 `mapstructure:"min_entry_percent"`
	TakeProfitMultiple    float64 `mapstructure:"take_profit_multiple"`
	MaxAllocPercent       float64 `mapstructure:"max_alloc_percent"`
	MaxOpenPositions      int     `mapstructure:"max_open_positions"`
	AutoTradingEnabled    bool    `mapstructure:"auto_trading_enabled"`
	
	// Partial Profit-Taking (sell X% at Y multiple)
	PartialProfitPercent  float64 `mapstructure:"partial_profit_percent"`  // e.g., 50 = sell 50%
	PartialProfitMultiple float64 `mapstructure:"partial_profit_multiple"` // e.g., 1.5 = at 1.5X
	
	// Time-Based Exit (auto-sell after X minutes)
	MaxHoldMinutes        int     `mapstructure:"max_hold_minutes"` // 0 = disabled

	// Simulation
	SimulationMode        bool    `mapstructure:"simulation_mode"`  // Enable for CLI test verification
}

type FeesConfig struct {
	StaticPriorityFeeSol float64 `mapstructure:"static_priority_fee_sol"`
	StaticGasFeeSol      float64 `mapstructure:"static_gas_fee_sol"`
}

type JupiterConfig struct {
	QuoteAPIURL    string `mapstructure:"quote_api_url"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type TelegramConfig struct {
	ListenPort int    `mapstructure:"listen_port"`
	ListenHost string `mapstructure:"listen_host"`
}

type BlockchainConfig struct {
	BlockhashRefreshMs    int `mapstructure:"blockhash_refresh_ms"`
	BlockhashTTLSeconds   int `mapstructure:"blockhash_ttl_seconds"`
	BalanceRefreshSeconds int `mapstructure:"balance_refresh_seconds"`
}

type StorageConfig struct {
	SQLitePath        string `mapstructure:"sqlite_path"`
	SignalsBufferSize int    `mapstructure:"signals_buffer_size"`
}

type TUIConfig struct {
	RefreshRateMs int `mapstructure:"refresh_rate_ms"`
	LogLines      int `mapstructure:"log_lines"`
}

type WebSocketConfig struct {
	ShyftURL        string `mapstructure:"shyft_url"`
	ReconnectDelayMs int   `mapstructure:"reconnect_delay_ms"`
	PingIntervalMs   int   `mapstructure:"ping_interval_ms"`
}

// Manager handles config loading and hot-reload
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager creates a new config manager
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set Defaults (Hardening)
	v.SetDefault("blockchain.blockhash_refresh_ms", 100)
	v.SetDefault("blockchain.blockhash_ttl_seconds", 60)
	v.SetDefault("blockchain.balance_refresh_seconds", 5)
	v.SetDefault("jupiter.quote_api_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("jupiter.slippage_bps", 500) // 5%
	v.SetDefault("jupiter.timeout_seconds", 10)
	v.SetDefault("rpc.shyft_api_key_env", "SHYFT_API_KEY")
	v.SetDefault("rpc.fallback_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("storage.sqlite_path", "./data/bot.db")
	v.SetDefault("storage.signals_buffer_size", 100)
	v.SetDefault("tui.refresh_rate_ms", 100)
	v.SetDefault("tui.log_lines", 100)
	v.SetDefault("wallet.private_key_env", "WALLET_PRIVATE_KEY")

	v.SetDefault("circuit_breaker.consecutive_failure_threshold", 5)
	v.SetDefault("circuit_breaker.loss_threshold_lamports", 0)
	v.SetDefault("circuit_breaker.cooldown_seconds", 120)
	v.SetDefault("circuit_breaker.half_open_probe_budget", 3)
	v.SetDefault("circuit_breaker.half_open_successes_to_close", 3)

	v.SetDefault("queue.capacity", 500)
	v.SetDefault("queue.spear_shed_threshold_percent", 80.0)

	v.SetDefault("token_safety.cache_capacity", 2000)
	v.SetDefault("token_safety.cache_ttl_seconds", 300)

	v.SetDefault("consensus.window_seconds", 300)
	v.SetDefault("consensus.min_leaders", 2)

	v.SetDefault("exit_detector.max_delay_seconds", 60)

	v.SetDefault("recovery.interval_seconds", 30)
	v.SetDefault("recovery.staleness_threshold_seconds", 60)
	v.SetDefault("recovery.max_indeterminate_attempts", 3)

	v.SetDefault("roster.input_path", "./data/roster_new.db")

	v.SetDefault("engine.max_concurrent_executions", 8)

	v.SetDefault("tip.exit_tip_sol", 0.0005)
	v.SetDefault("tip.consensus_tip_sol", 0.001)
	v.SetDefault("tip.standard_tip_sol", 0.0003)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Manual fallback if unmarshal leaves zero values (double check)
	if cfg.Jupiter.QuoteAPIURL == "" { cfg.Jupiter.QuoteAPIURL = "https://quote-api.jup.ag/v6/quote" }
	if cfg.Storage.SQLitePath == "" { cfg.Storage.SQLitePath = "./data/bot.db" }

	m := &Manager{
		config: &cfg,
		viper:  v,
	}

	// Watch for config changes
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetTrading returns trading config (most frequently accessed)
func (m *Manager) GetTrading() TradingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Trading
}

// SetOnChange registers a callback for config changes
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Update modifies config values and saves to file
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Apply changes
	fn(m.config)

	// Update viper values
	m.viper.Set("trading.min_entry_percent", m.config.Trading.MinEntryPercent)
	m.viper.Set("trading.take_profit_multiple", m.config.Trading.TakeProfitMultiple)
	m.viper.Set("trading.max_alloc_percent", m.config.Trading.MaxAllocPercent)
	m.viper.Set("trading.max_open_positions", m.config.Trading.MaxOpenPositions)
	m.viper.Set("trading.auto_trading_enabled", m.config.Trading.AutoTradingEnabled)
	m.viper.Set("fees.static_priority_fee_sol", m.config.Fees.StaticPriorityFeeSol)

	// Write to file
	if err := m.viper.WriteConfig(); err != nil {
		return err
	}

	if m.onChange != nil {
		m.onChange(m.config)
	}

	return nil
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// GetPrivateKey loads private key from environment
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetShyftAPIKey loads Shyft API key from environment
func (m *Manager) GetShyftAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
}

// GetFallbackAPIKey loads Fallback API key from environment
func (m *Manager) GetFallbackAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
}

// GetShyftRPCURL returns the full Shyft RPC URL with API key injected
func (m *Manager) GetShyftRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.RPC.ShyftURL
	key := os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
	if key == "" {
		return url
	}

	if strings.Contains(url, "?") {
		return url + "&api_key=" + key
	}
	return url + "?api_key=" + key
}

// GetFallbackRPCURL returns the full Fallback RPC URL with API key injected
func (m *Manager) GetFallbackRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.RPC.FallbackURL
	key := os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
	if key == "" {
		return url
	}

	// Detect provider param style
	param := "api_key"
	if strings.Contains(url, "helius") {
		param = "api-key"
	}

	if strings.Contains(url, "?") {
		return url + "&" + param + "=" + key
	}
	return url + "?" + param + "=" + key
}

// GetShyftWSURL returns the full Shyft WebSocket URL with API key injected
func (m *Manager) GetShyftWSURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.WebSocket.ShyftURL
	key := os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
	if key == "" {
		return url
	}

	if strings.Contains(url, "?") {
		return url + "&api_key=" + key
	}
	return url + "?api_key=" + key
}

// GetBlockhashRefresh returns blockhash refresh interval as duration
func (m *Manager) GetBlockhashRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BlockhashRefreshMs) * time.Millisecond
}

// GetBalanceRefresh returns balance refresh interval as duration
func (m *Manager) GetBalanceRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BalanceRefreshSeconds) * time.Second
}

// GetBreakerConfig translates the YAML circuit breaker section into
// breaker.Config.
func (m *Manager) GetBreakerConfig() breaker.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.config.CircuitBreaker
	return breaker.Config{
		ConsecutiveFailureThreshold: c.ConsecutiveFailureThreshold,
		LossThresholdLamports:       c.LossThresholdLamports,
		CooldownPeriod:              time.Duration(c.CooldownSeconds) * time.Second,
		HalfOpenProbeBudget:         c.HalfOpenProbeBudget,
		HalfOpenSuccessesToClose:    c.HalfOpenSuccessesToClose,
	}
}

// GetQueueConfig translates the YAML queue section into queue.Config.
func (m *Manager) GetQueueConfig() queue.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.config.Queue
	return queue.Config{
		Capacity:                  c.Capacity,
		SpearShedThresholdPercent: c.SpearShedThresholdPercent,
	}
}

// GetRecoveryConfig translates the YAML recovery section into
// recovery.Config.
func (m *Manager) GetRecoveryConfig() recovery.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.config.Recovery
	return recovery.Config{
		Interval:           time.Duration(c.IntervalSeconds) * time.Second,
		StalenessThreshold: time.Duration(c.StalenessThresholdSeconds) * time.Second,
		MaxIndeterminate:   c.MaxIndeterminateAttempts,
	}
}

// GetEngineConfig translates the YAML engine section into engine.Config.
func (m *Manager) GetEngineConfig() engine.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return engine.Config{MaxConcurrentExecutions: m.config.Engine.MaxConcurrentExecutions}
}

// GetTipConfig translates the YAML tip section into trading.TipConfig.
func (m *Manager) GetTipConfig() trading.TipConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.config.Tip
	return trading.TipConfig{
		ExitTipSOL:      decimal.NewFromFloat(c.ExitTipSOL),
		ConsensusTipSOL: decimal.NewFromFloat(c.ConsensusTipSOL),
		StandardTipSOL:  decimal.NewFromFloat(c.StandardTipSOL),
	}
}

// GetExecutorConfig translates fees + tip YAML sections into
// trading.Config.
func (m *Manager) GetExecutorConfig() trading.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := trading.DefaultConfig()
	cfg.BasePriorityFeeSOL = decimal.NewFromFloat(m.config.Fees.StaticPriorityFeeSol)
	cfg.Tip = trading.TipConfig{
		ExitTipSOL:      decimal.NewFromFloat(m.config.Tip.ExitTipSOL),
		ConsensusTipSOL: decimal.NewFromFloat(m.config.Tip.ConsensusTipSOL),
		StandardTipSOL:  decimal.NewFromFloat(m.config.Tip.StandardTipSOL),
	}
	return cfg
}
