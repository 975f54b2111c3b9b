package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenDerivENV     = "DERIV_TOKEN"
	appIDDerivENV     = "DERIV_APP_ID"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	jaegerHostENV     = "JAEGER_HOST"
)

// Config ...
type Config struct {
	Deriv struct {
		AppID string `yaml:"app_id"`
		Token string `yaml:"token"`
	} `yaml:"deriv"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	// Фид. Интервалы настраиваются только через env: yaml.v2 не умеет
	// "30s" в time.Duration.
	HistoryCount     int `yaml:"history_count"` // сколько свечей грузим при бутстрапе
	PingInterval     time.Duration
	AuthTimeout      time.Duration
	BootstrapTimeout time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration

	// Агрегатор
	BufferCapacity int `yaml:"buffer_capacity"` // свечей на (symbol, granularity)

	// Движок сигналов
	EMAFast        int     `yaml:"ema_fast"`
	EMASlow        int     `yaml:"ema_slow"`
	EMAMacro       int     `yaml:"ema_macro"`
	RSIPeriod      int     `yaml:"rsi_period"`
	RSIOverbought  float64 `yaml:"rsi_overbought"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
	BBPeriod       int     `yaml:"bb_period"`
	BBStdK         float64 `yaml:"bb_k"`
	StochK         int     `yaml:"stoch_k"`
	StochD         int     `yaml:"stoch_d"`
	TrendSpan      int     `yaml:"trend_span"`
	TrendScale     float64 `yaml:"trend_scale"`
	TrendThreshold float64 `yaml:"trend_threshold"` // выше — TRENDING, ниже — RANGING

	// Шедулер ботов
	PollInterval  time.Duration
	Cooldown      time.Duration // пауза после сделки, чтобы не войти дважды по тому же сигналу
	MinConfidence int           `yaml:"min_confidence"`
	DefaultStake  float64       `yaml:"default_stake"`
	Executor      string        `yaml:"executor"` // paper | deriv
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		HistoryCount:     intFromEnv("HISTORY_COUNT", 200),
		PingInterval:     durationFromEnv("PING_INTERVAL", "30s"),
		AuthTimeout:      durationFromEnv("AUTH_TIMEOUT", "10s"),
		BootstrapTimeout: durationFromEnv("BOOTSTRAP_TIMEOUT", "20s"),
		BackoffBase:      durationFromEnv("BACKOFF_BASE", "1s"),
		BackoffMax:       durationFromEnv("BACKOFF_MAX", "30s"),

		BufferCapacity: intFromEnv("BUFFER_CAPACITY", 500),

		EMAFast:        intFromEnv("EMA_FAST", 10),
		EMASlow:        intFromEnv("EMA_SLOW", 30),
		EMAMacro:       intFromEnv("EMA_MACRO", 100),
		RSIPeriod:      intFromEnv("RSI_PERIOD", 14),
		RSIOverbought:  floatFromEnv("RSI_OVERBOUGHT", 70),
		RSIOversold:    floatFromEnv("RSI_OVERSOLD", 30),
		BBPeriod:       intFromEnv("BB_PERIOD", 20),
		BBStdK:         floatFromEnv("BB_K", 2),
		StochK:         intFromEnv("STOCH_K", 14),
		StochD:         intFromEnv("STOCH_D", 3),
		TrendSpan:      intFromEnv("TREND_SPAN", 20),
		TrendScale:     floatFromEnv("TREND_SCALE", 25),
		TrendThreshold: floatFromEnv("TREND_THRESHOLD", 20),

		PollInterval:  durationFromEnv("POLL_INTERVAL", "5s"),
		Cooldown:      durationFromEnv("COOLDOWN", "60s"),
		MinConfidence: intFromEnv("MIN_CONFIDENCE", 60),
		DefaultStake:  floatFromEnv("DEFAULT_STAKE", 1.0),
		Executor:      getenvDefault("EXECUTOR", "paper"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenDerivENV); token != "" {
		config.Deriv.Token = token
	}
	if appID := os.Getenv(appIDDerivENV); appID != "" {
		config.Deriv.AppID = appID
	}
	if config.Deriv.AppID == "" {
		config.Deriv.AppID = "1089"
	}
	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if host := os.Getenv(jaegerHostENV); host != "" {
		config.Jaeger.Host = host
	}
	if config.Jaeger.Port == 0 {
		config.Jaeger.Port = intFromEnv("JAEGER_PORT", 6831)
	}

	return &config, nil
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
