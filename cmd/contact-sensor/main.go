// Command contact-sensor turns contact and button edges into on/off commands
// and reports battery capacity over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/sweeney/contact-sensor/internal/adc"
	"github.com/sweeney/contact-sensor/internal/apperr"
	"github.com/sweeney/contact-sensor/internal/config"
	"github.com/sweeney/contact-sensor/internal/gpio"
	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/mqtt"
	"github.com/sweeney/contact-sensor/internal/web"
)

var version = "dev"

// statusRefresh is how often the status page counters are refreshed.
const statusRefresh = time.Second

func main() {
	cfg, err := config.Load(afero.NewOsFs(), os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Init("info", true)
		logger.Fatal().Err(err).Msg("load config")
	}
	if cfg.PrintVersion {
		fmt.Println(version)
		return
	}

	logger.Init(cfg.LogLevel, cfg.LogConsole)
	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Str("code", string(apperr.Of(err))).Msg("fatal")
	}
}

func run(cfg *config.Config) error {
	drv, err := gpio.NewRealDriver(cfg.GPIO.Chip)
	if err != nil {
		return apperr.Wrap(apperr.ConfigFailed, "open gpio chip", err)
	}
	defer drv.Close()

	conv := adc.NewIIO(afero.NewOsFs(), cfg.ADC.Dir, cfg.ADC.Channel, cfg.ADC.NativeBits)
	transport := mqtt.NewRealTransport(mqttOptions(cfg))

	a, err := newApp(cfg, drv, conv, transport, time.Now())
	if err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, a.tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	logger.Info().
		Str("version", version).
		Str("broker", cfg.MQTT.Broker).
		Str("device", cfg.MQTT.Device).
		Ints("buttons", cfg.GPIO.Buttons).
		Dur("battery_period", cfg.Battery.Period).
		Str("config_file", cfg.ConfigFile).
		Msg("started")

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(a, ticker.C, sigCh)
}

func mqttOptions(cfg *config.Config) mqtt.Options {
	return mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topics:     mqtt.NewTopics(cfg.MQTT.BaseTopic, cfg.MQTT.Device),
		BufferSize: cfg.MQTT.BufferSize,
	}
}

// runLoop starts the engine and the work queue, refreshes the status tracker
// on every tick and stops everything on the first signal.
func runLoop(a *app, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.queue.Start(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- a.engine.Run(ctx) }()

	for {
		select {
		case s := <-sig:
			logger.Info().Str("signal", s.String()).Msg("shutting down")
			a.sampler.Stop()
			cancel()
			err := <-engineDone
			<-a.queue.Stopped()
			a.refresh()
			logger.Info().RawJSON("status", a.statusLine()).Msg("stopped")
			return err

		case err := <-engineDone:
			cancel()
			<-a.queue.Stopped()
			if err == nil {
				err = errors.New("engine stopped unexpectedly")
			}
			return fmt.Errorf("engine: %w", err)

		case <-tick:
			a.refresh()
		}
	}
}
