package config

import (
	"log"
	"reflect"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/tonkeeper/tongo/config"
)

type Config struct {
	TonAPI struct {
		Token      string `env:"TONAPI_TOKEN"`
		URL        string `env:"TONAPI_URL" envDefault:"https://tonapi.io"`
		TestnetURL string `env:"TESTNET_TONAPI_URL" envDefault:"https://testnet.tonapi.io"`
	}
	LiteServers []config.LiteServer `env:"LITE_SERVERS"`
	Battery     struct {
		URL        string `env:"BATTERY_URL" envDefault:"https://battery.tonkeeper.com"`
		TestnetURL string `env:"TESTNET_BATTERY_URL" envDefault:"https://testnet-battery.tonkeeper.com"`
		Disabled   bool   `env:"BATTERY_DISABLED" envDefault:"false"`
	}
	App struct {
		LogLevel     string        `env:"LOG_LEVEL" envDefault:"INFO"`
		MetricsPort  int           `env:"METRICS_PORT" envDefault:"0"`
		Debounce     time.Duration `env:"DEBOUNCE" envDefault:"600ms"`
		KeystorePath string        `env:"KEYSTORE_PATH" envDefault:"keystore.toml"`
		SentryDSN    string        `env:"SENTRY_DSN"`
	}
}

func Load() Config {
	c, err := Parse()
	if err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}

func Parse() (Config, error) {
	var c Config
	err := env.ParseWithFuncs(&c, map[reflect.Type]env.ParserFunc{
		reflect.TypeOf([]config.LiteServer{}): func(v string) (interface{}, error) {
			servers, err := config.ParseLiteServersEnvVar(v)
			if err != nil {
				return nil, err
			}
			return servers, nil
		}})
	return c, err
}
