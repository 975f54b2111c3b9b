package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"deriv_bot/internal/models"
	candlesvc "deriv_bot/internal/modules/candles/service"
	"deriv_bot/internal/modules/config"
	signalsvc "deriv_bot/internal/modules/signals/service"
)

// Прогон исторических свечей из CSV через агрегатор и движок сигналов.
// Формат строки: epoch,open,high,low,close. Конфиг — .replay.yaml рядом
// с запуском, все ключи имеют дефолты.

type summary struct {
	Symbol      string `yaml:"symbol"`
	Granularity int    `yaml:"granularity"`
	Candles     int    `yaml:"candles"`
	Signals     int    `yaml:"signals"`
	Calls       int    `yaml:"calls"`
	Puts        int    `yaml:"puts"`
	LastVerdict string `yaml:"last_verdict"`
}

func loadCandles(path, symbol string, granularity int) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 5

	var out []models.Candle
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		epoch, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			// заголовок пропускаем
			if line == 1 {
				continue
			}
			return nil, errors.Wrapf(err, "line %d: epoch", line)
		}
		var prices [4]float64
		for i := 0; i < 4; i++ {
			prices[i], err = strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: field %d", line, i+1)
			}
		}
		out = append(out, models.Candle{
			Symbol:      symbol,
			Granularity: granularity,
			Open:        prices[0],
			High:        prices[1],
			Low:         prices[2],
			Close:       prices[3],
			BucketStart: epoch - epoch%int64(granularity),
		})
	}
	return out, nil
}

func replayConfig() *config.Config {
	cfg := &config.Config{
		BufferCapacity: viper.GetInt("buffer_capacity"),
		EMAFast:        viper.GetInt("ema_fast"),
		EMASlow:        viper.GetInt("ema_slow"),
		EMAMacro:       viper.GetInt("ema_macro"),
		RSIPeriod:      viper.GetInt("rsi_period"),
		RSIOverbought:  viper.GetFloat64("rsi_overbought"),
		RSIOversold:    viper.GetFloat64("rsi_oversold"),
		BBPeriod:       viper.GetInt("bb_period"),
		BBStdK:         viper.GetFloat64("bb_k"),
		StochK:         viper.GetInt("stoch_k"),
		StochD:         viper.GetInt("stoch_d"),
		TrendSpan:      viper.GetInt("trend_span"),
		TrendScale:     viper.GetFloat64("trend_scale"),
		TrendThreshold: viper.GetFloat64("trend_threshold"),
	}
	return cfg
}

func main() {
	pflag.String("input", "candles.csv", "CSV со свечами: epoch,open,high,low,close")
	pflag.String("symbol", "R_100", "символ серии")
	pflag.Int("granularity", 60, "гранулярность серии, секунды")
	pflag.Int("warmup", 150, "свечей истории перед реплеем")
	pflag.Parse()

	viper.SetConfigName(".replay")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		panic(err)
	}

	viper.SetDefault("buffer_capacity", 500)
	viper.SetDefault("ema_fast", 10)
	viper.SetDefault("ema_slow", 30)
	viper.SetDefault("ema_macro", 100)
	viper.SetDefault("rsi_period", 14)
	viper.SetDefault("rsi_overbought", 70)
	viper.SetDefault("rsi_oversold", 30)
	viper.SetDefault("bb_period", 20)
	viper.SetDefault("bb_k", 2)
	viper.SetDefault("stoch_k", 14)
	viper.SetDefault("stoch_d", 3)
	viper.SetDefault("trend_span", 20)
	viper.SetDefault("trend_scale", 25)
	viper.SetDefault("trend_threshold", 20)

	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			panic(fmt.Errorf("read config: %w", err))
		}
		// файла нет — едем на дефолтах
	}

	symbol := viper.GetString("symbol")
	granularity := viper.GetInt("granularity")
	warmup := viper.GetInt("warmup")

	candles, err := loadCandles(viper.GetString("input"), symbol, granularity)
	if err != nil {
		panic(err)
	}
	if len(candles) <= warmup {
		panic(fmt.Errorf("need more than %d candles, got %d", warmup, len(candles)))
	}

	cfg := replayConfig()
	agg := candlesvc.NewAggregator(cfg)
	engine := signalsvc.NewEngine(cfg, agg, nil)
	agg.SubscribeClosed(engine.OnCandleClosed)

	sum := summary{Symbol: symbol, Granularity: granularity, Candles: len(candles)}
	engine.OnSignal(func(sig models.Signal) {
		sum.Signals++
		switch sig.Direction {
		case models.DirectionCall:
			sum.Calls++
		case models.DirectionPut:
			sum.Puts++
		}
		fmt.Printf("%d %s conf=%d%% [%s] %s\n",
			sig.GeneratedAt.Unix(), sig.Direction, sig.Confidence, sig.Strategy, sig.Reason)
	})

	engine.HistoryReady(symbol, granularity, candles[:warmup])
	for _, c := range candles[warmup:] {
		agg.IngestClosed(c)
	}

	if sig, ok := engine.Latest(symbol, granularity); ok {
		sum.LastVerdict = fmt.Sprintf("%s conf=%d%% [%s]", sig.Direction, sig.Confidence, sig.Strategy)
	}

	bs, err := yaml.Marshal(sum)
	if err != nil {
		panic(errors.Wrap(err, "marshal summary"))
	}
	fmt.Println("---")
	fmt.Print(string(bs))
}
