package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/enasolar2mqtt/internal/adapter/actor"
	"github.com/berfenger/enasolar2mqtt/internal/config"
	"github.com/berfenger/enasolar2mqtt/internal/core/actor"
	"github.com/berfenger/enasolar2mqtt/internal/core/flow"
	"github.com/berfenger/enasolar2mqtt/internal/core/integration"
	"github.com/berfenger/enasolar2mqtt/internal/server"
	"github.com/berfenger/enasolar2mqtt/internal/store"
	"github.com/berfenger/enasolar2mqtt/internal/sun"
	"github.com/berfenger/enasolar2mqtt/internal/util/actorutil"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	defer logger.Sync()

	// config entries
	entries, err := store.Open(cfg.Storage.EntriesFile)
	if err != nil {
		logger.Error("could not open config entries", zap.String("file", cfg.Storage.EntriesFile), zap.Error(err))
		return
	}

	factory := enasolar.NewFactory(cfg.Inverter.Timeout(), logger)
	runtime := integration.NewRuntime(factory, sun.NewGate(cfg.Location, logger), logger)
	flows := flow.NewManager(factory, net.DefaultResolver, entries, logger)

	// sensor states feed MQTT and the metrics collector
	eventStream := &eventstream.EventStream{}
	collector := server.NewSensorCollector()
	collector.Subscribe(eventStream)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, eventStream, runtime, flows, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}
	flows.SetListener(actor.NewEntryListener(ctx, pid))

	server := server.NewServer(*cfg, ctx, pid, flows, registry, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	collector.Unsubscribe(eventStream)
	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ENASOLAR_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ENASOLAR_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("enasolar")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.MQTT.Host == "" {
		return nil, errors.New("config param mqtt.host is required")
	}
	if err := config.CheckLocation(cfg.Location); err != nil {
		return nil, err
	}
	if cfg.Inverter.TimeoutMillis < 500 {
		return nil, errors.New("config param inverter.timeout_millis should be >= 500")
	}
	if cfg.Coordinator.PollIntervalSeconds < 10 {
		return nil, errors.New("config param coordinator.poll_interval_seconds should be >= 10")
	}
	if cfg.Coordinator.SetupRetrySeconds < 1 {
		return nil, errors.New("config param coordinator.setup_retry_seconds should be >= 1")
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) pactor.Actor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("inverter.timeout_millis", 10000)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.base_topic", "enasolar")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("location.sun_gate", false)
	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)
	viper.SetDefault("coordinator.poll_interval_seconds", 60)
	viper.SetDefault("coordinator.setup_retry_seconds", 60)
	viper.SetDefault("storage.entries_file", "entries.yaml")
	viper.SetDefault("http_log", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
