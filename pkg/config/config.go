package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ModelConfig declares one registry entry.
type ModelConfig struct {
	Name   string             `yaml:"name" validate:"required"`
	Kind   string             `yaml:"kind" validate:"required,oneof=logistic random_forest linear svr"`
	Params map[string]float64 `yaml:"params"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
		Dir    string `yaml:"dir" default:"logs"`
		Keep   int    `yaml:"keep" default:"5" validate:"gte=0"`
	} `yaml:"log"`
	Data struct {
		Source    string   `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		Tickers   []string `yaml:"tickers" default:"[\"SPY\",\"QQQ\",\"AAPL\",\"MSFT\"]" validate:"required,min=1,dive,required"`
		StartDate string   `yaml:"start_date" default:"2015-01-01" validate:"required"`
		Interval  string   `yaml:"interval" default:"1d" validate:"oneof=1h 1d 1wk 1mo"`
		Dir       string   `yaml:"dir" default:"data/raw" validate:"required"`
		// Pattern restricts the CSV files read from Dir; empty uses *_<interval>.csv.
		Pattern string `yaml:"pattern"`
	} `yaml:"data"`
	Fetch struct {
		Provider   string        `yaml:"provider" default:"yahoo" validate:"oneof=yahoo clickhouse"`
		BaseURL    string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		Retries    int           `yaml:"retries" default:"3" validate:"gte=1"`
		Backoff    time.Duration `yaml:"backoff" default:"5s"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
		RatePerSec float64       `yaml:"rate_per_sec" default:"2" validate:"gt=0"`
	} `yaml:"fetch"`
	Features struct {
		Returns string `yaml:"returns" default:"log" validate:"oneof=log pct"`
		SMA     []int  `yaml:"sma" default:"[10,20,50]" validate:"dive,gte=1"`
		EMA     []int  `yaml:"ema" default:"[12,26]" validate:"dive,gte=1"`
		RSI     []int  `yaml:"rsi" default:"[14]" validate:"dive,gte=1"`
		MACD    struct {
			Fast   int `yaml:"fast" default:"12" validate:"gte=1"`
			Slow   int `yaml:"slow" default:"26" validate:"gtfield=Fast"`
			Signal int `yaml:"signal" default:"9" validate:"gte=1"`
		} `yaml:"macd"`
		Bollinger struct {
			Window int     `yaml:"window" default:"20" validate:"gte=2"`
			K      float64 `yaml:"k" default:"2.0" validate:"gt=0"`
		} `yaml:"bollinger"`
		ATR        int   `yaml:"atr" default:"14" validate:"gte=1"`
		Lags       []int `yaml:"lags" default:"[1,2,3,5]" validate:"dive,gte=1"`
		Volatility []int `yaml:"volatility" default:"[20]" validate:"dive,gte=2"`
		Winsorize  bool  `yaml:"winsorize" default:"true"`
	} `yaml:"features"`
	WalkForward struct {
		Policy       string `yaml:"policy" default:"fixed" validate:"oneof=fixed counted"`
		InitialTrain int    `yaml:"initial_train" validate:"gte=0"`
		TestSize     int    `yaml:"test_size" default:"200" validate:"gte=1"`
		Embargo      int    `yaml:"embargo" default:"5" validate:"gte=0"`
		Step         int    `yaml:"step" validate:"gte=0"`
		Splits       int    `yaml:"splits" validate:"gte=0"`
		Horizon      int    `yaml:"horizon" default:"1" validate:"gte=1"`
		Target       string `yaml:"target" default:"ret" validate:"required"`
		MinRows      int    `yaml:"min_rows" default:"300" validate:"gte=0"`
	} `yaml:"walk_forward"`
	Models struct {
		Classifiers []ModelConfig `yaml:"classifiers" validate:"dive"`
		Regressors  []ModelConfig `yaml:"regressors" validate:"dive"`
		Seed        int64         `yaml:"seed" default:"42"`
		Workers     int           `yaml:"workers" validate:"gte=0"`
	} `yaml:"models"`
	Ensemble struct {
		Classification     string  `yaml:"classification" default:"mean" validate:"oneof=mean inverse_error"`
		Regression         string  `yaml:"regression" default:"inverse_error" validate:"oneof=mean inverse_error"`
		ValidationFraction float64 `yaml:"validation_fraction" default:"0.2" validate:"gt=0,lt=1"`
	} `yaml:"ensemble"`
	Run struct {
		TickerTimeout time.Duration `yaml:"ticker_timeout"`
		TopN          int           `yaml:"top_n" default:"10" validate:"gte=0"`
		PrintSummary  bool          `yaml:"print_summary" default:"true"`
	} `yaml:"run"`
	Backtest struct {
		Model      string  `yaml:"model" default:"ensemble" validate:"required"`
		Threshold  float64 `yaml:"threshold" validate:"gte=0"`
		ReportPath string  `yaml:"report_path" default:"reports/backtest.csv" validate:"required"`
		EquityDir  string  `yaml:"equity_dir" default:"reports/equity"`
	} `yaml:"backtest"`
	Output struct {
		SummaryPath           string `yaml:"summary_path" default:"models/prob_summary.csv" validate:"required"`
		RegressionSummaryPath string `yaml:"regression_summary_path" default:"models/reg_summary.csv" validate:"required"`
		TraceDir              string `yaml:"trace_dir" default:"models/traces"`
		MetricsPath           string `yaml:"metrics_path" default:"models/metrics_full.csv" validate:"required"`
		PredsDir              string `yaml:"preds_dir" default:"data/preds"`
	} `yaml:"output"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CacheTTL        time.Duration `yaml:"cache_ttl" default:"30s"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled     bool   `yaml:"enabled" default:"true"`
		Path        string `yaml:"path" default:"/metrics"`
		Pushgateway string `yaml:"pushgateway"`
		Job         string `yaml:"job" default:"finsignal"`
	} `yaml:"metrics"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		Topic        string   `yaml:"topic" default:"finsignal.summaries"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BarsTable        string        `yaml:"bars_table" default:"bars"`
		SummaryTable     string        `yaml:"summary_table" default:"ticker_summaries"`
		TraceTable       string        `yaml:"trace_table" default:"window_results"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix" default:"finsignal"`
		KeyPrefix string        `yaml:"key_prefix" default:"summary"`
		TTL       time.Duration `yaml:"ttl" default:"24h"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Default returns a configuration holding only default values.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINSIGNAL_TICKERS"); v != "" {
		c.Data.Tickers = splitList(v)
	}
	if v := os.Getenv("FINSIGNAL_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("FINSIGNAL_INTERVAL"); v != "" {
		c.Data.Interval = v
	}
	if v := os.Getenv("FINSIGNAL_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.WalkForward.Policy == "counted" && c.WalkForward.Splits < 1 {
		return fmt.Errorf("walk_forward.splits must be >= 1 for the counted policy")
	}
	seen := make(map[string]bool)
	for _, m := range c.Models.Classifiers {
		if seen[m.Name] {
			return fmt.Errorf("duplicate classifier %q", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// CSVPattern is the glob used to list ticker files in the data directory.
func (c *Config) CSVPattern() string {
	if c.Data.Pattern != "" {
		return c.Data.Pattern
	}
	return "*_" + c.Data.Interval + ".csv"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
