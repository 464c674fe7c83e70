// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	flag "github.com/spf13/pflag"

	"github.com/gridlight-io/gridlight/appclient"
	"github.com/gridlight-io/gridlight/commitments"
	"github.com/gridlight-io/gridlight/noderpc"
	"github.com/gridlight-io/gridlight/restclient"
	"github.com/gridlight-io/gridlight/store"
)

type MetricsServerConfig struct {
	Addr string `koanf:"addr"`
	Port int    `koanf:"port"`
}

var DefaultMetricsServerConfig = MetricsServerConfig{
	Addr: "127.0.0.1",
	Port: 6070,
}

type GridlightConfig struct {
	AppClient     appclient.Config    `koanf:"app-client"`
	Gateway       restclient.Config   `koanf:"gateway"`
	Node          noderpc.Config      `koanf:"node"`
	Store         store.Config        `koanf:"store"`
	FirstBlock    uint32              `koanf:"first-block"`
	LogLevel      int                 `koanf:"log-level"`
	Metrics       bool                `koanf:"metrics"`
	MetricsServer MetricsServerConfig `koanf:"metrics-server"`
	ConfFile      string              `koanf:"conf-file"`
}

var DefaultGridlightConfig = GridlightConfig{
	AppClient:     appclient.DefaultConfig,
	Gateway:       restclient.DefaultConfig,
	Node:          noderpc.DefaultConfig,
	Store:         store.DefaultConfig,
	FirstBlock:    1,
	LogLevel:      int(log.LvlInfo),
	Metrics:       false,
	MetricsServer: DefaultMetricsServerConfig,
}

func parseGridlight(args []string) (*GridlightConfig, error) {
	f := flag.NewFlagSet("gridlight", flag.ContinueOnError)

	appclient.ConfigAddOptions("app-client", f)
	restclient.ConfigAddOptions("gateway", f)
	noderpc.ConfigAddOptions("node", f)
	store.ConfigAddOptions("store", f)

	f.Uint32("first-block", DefaultGridlightConfig.FirstBlock, "first block number to process")
	f.Int("log-level", DefaultGridlightConfig.LogLevel, "log level; 1: ERROR, 2: WARN, 3: INFO, 4: DEBUG, 5: TRACE")
	f.Bool("metrics", DefaultGridlightConfig.Metrics, "enable metrics")
	f.String("metrics-server.addr", DefaultMetricsServerConfig.Addr, "metrics server address")
	f.Int("metrics-server.port", DefaultMetricsServerConfig.Port, "metrics server port")
	f.String("conf-file", "", "path to a JSON configuration file")

	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if confFile, _ := f.GetString("conf-file"); confFile != "" {
		if err := k.Load(file.Provider(confFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", confFile, err)
		}
	}
	if err := k.Load(env.Provider("GRIDLIGHT_", ".", func(name string) string {
		// GRIDLIGHT_APP__CLIENT_APP__ID maps to app-client.app-id
		name = strings.ToLower(strings.TrimPrefix(name, "GRIDLIGHT_"))
		name = strings.ReplaceAll(name, "__", "-")
		return strings.ReplaceAll(name, "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	config := DefaultGridlightConfig
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &config, nil
}

func main() {
	if err := startup(); err != nil {
		log.Error("Error running gridlight", "err", err)
		os.Exit(1)
	}
}

func startup() error {
	config, err := parseGridlight(os.Args[1:])
	if err != nil {
		return err
	}

	glogger := log.NewGlogHandler(log.StreamHandler(os.Stderr, log.TerminalFormat(false)))
	glogger.Verbosity(log.Lvl(config.LogLevel))
	log.Root().SetHandler(glogger)

	if config.Metrics {
		go metrics.CollectProcessMetrics(3 * time.Second)
		address := fmt.Sprintf("%v:%v", config.MetricsServer.Addr, config.MetricsServer.Port)
		exp.Setup(address)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewDBStorage(config.Store)
	if err != nil {
		return fmt.Errorf("opening app data store: %w", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			log.Error("Error closing app data store", "err", err)
		}
	}()

	gateway, err := restclient.NewClient(config.Gateway)
	if err != nil {
		return fmt.Errorf("creating grid gateway client: %w", err)
	}

	var fallback appclient.FallbackFetcher
	if !config.AppClient.DisableRPC && config.Node.URL != "" {
		node, err := noderpc.Dial(config.Node.URL)
		if err != nil {
			return fmt.Errorf("connecting to full node: %w", err)
		}
		fallback = node
	}

	client := appclient.NewAppClient(config.AppClient, commitments.DefaultPublicParams(), gateway, fallback, db)

	blocks := make(chan appclient.BlockVerified, 1)
	watcher := restclient.NewBlockWatcher(gateway, config.FirstBlock, config.Gateway.PollInterval)
	go watcher.Watch(ctx, blocks)

	client.Run(ctx, blocks)
	return nil
}
