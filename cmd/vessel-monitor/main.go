// Command vessel-monitor reads the sensors of two vessels, drives their
// relays and lamps, and keeps their state in sync with an external
// controller over a serial line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/config"
	"github.com/sweeney/vessel-monitor/internal/control"
	"github.com/sweeney/vessel-monitor/internal/gpio"
	"github.com/sweeney/vessel-monitor/internal/logging"
	"github.com/sweeney/vessel-monitor/internal/mqtt"
	"github.com/sweeney/vessel-monitor/internal/onewire"
	"github.com/sweeney/vessel-monitor/internal/serial"
	"github.com/sweeney/vessel-monitor/internal/state"
	"github.com/sweeney/vessel-monitor/internal/status"
	"github.com/sweeney/vessel-monitor/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/vessel-monitor/config.yaml", "Path to YAML configuration")
	printState := flag.Bool("print-state", false, "Read sensors once, print state and exit")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.InfoLevel).Fatalw("load config", "path", *configPath, "error", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := logging.New(cfg.Log.Level)
	defer log.Sync()

	if *printState {
		err = printSensors(cfg, os.Stdout)
	} else {
		err = run(cfg, log)
	}
	if err != nil {
		log.Fatalw("fatal", "error", err)
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		SerialPort:     cfg.Serial.Port,
		Baud:           cfg.Serial.Baud,
		PulsesPerLiter: cfg.Flow.PulsesPerLiter,
		ActuatorMs:     cfg.Intervals.Actuator.Milliseconds(),
		BroadcastMs:    cfg.Intervals.Broadcast.Milliseconds(),
		WarnBlinkMs:    cfg.Indicator.WarnBlink.Milliseconds(),
		AlarmBlinkMs:   cfg.Indicator.AlarmBlink.Milliseconds(),
		HeartbeatMs:    cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hw, release, err := openHardware(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	mon, err := newMonitor(cfg, hw, tracker, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := mon.Close(); err != nil {
			log.Warnw("release hardware", "error", err)
		}
	}()

	var tel *telemetry
	var telWG sync.WaitGroup
	telCtx, stopTelemetry := context.WithCancel(ctx)
	defer stopTelemetry()
	if cfg.MQTT.Broker != "" {
		session := mqtt.NewSessionID()
		publisher, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
			Session:  session,
			Log:      log,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()

		tel = &telemetry{
			publisher: publisher,
			conn:      publisher,
			tracker:   tracker,
			session:   session,
			now:       time.Now,
			log:       log,
		}
		tel.publishSystem(tracker.Snapshot(), mqtt.EventStartup, "", true)

		stateTicker := time.NewTicker(cfg.MQTT.StateInterval)
		defer stateTicker.Stop()
		var heartbeat <-chan time.Time
		if cfg.MQTT.Heartbeat > 0 {
			hb := time.NewTicker(cfg.MQTT.Heartbeat)
			defer hb.Stop()
			heartbeat = hb.C
		}
		telWG.Add(1)
		go func() {
			defer telWG.Done()
			tel.run(telCtx, stateTicker.C, heartbeat)
		}()
	} else {
		log.Infow("mqtt disabled, no broker configured")
	}

	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := web.New(cfg.HTTP.Addr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Infow("started",
		"serial", cfg.Serial.Port,
		"baud", cfg.Serial.Baud,
		"tick", cfg.Intervals.Tick,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.Intervals.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := runLoop(mon.step, ticker.C, sigCh, log)

	stopTelemetry()
	telWG.Wait()
	if tel != nil {
		tel.publishSystem(tel.refresh(), mqtt.EventShutdown, reason, true)
	}
	return nil
}

// openHardware requests every GPIO line, opens the serial port and starts
// the background temperature readers. release undoes whatever the monitor
// does not close itself.
func openHardware(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (hardware, func(), error) {
	var closers []io.Closer
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}
	fail := func(err error) (hardware, func(), error) {
		release()
		return hardware{}, nil, err
	}

	chip, err := gpio.OpenChip(cfg.Pins.Chip)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, chip)

	hw := hardware{
		flow:   chip.RisingEdges(cfg.Pins.Flow),
		levels: map[state.DeviceID]gpio.Input{},
		therms: map[state.DeviceID]onewire.Thermometer{},
		loads:  map[state.DeviceID]control.Loads{},
		lamps:  map[state.DeviceID]control.Lamps{},
	}

	// Lines handed to hw are closed by the monitor; until then they are
	// closed here if a later request fails.
	pending := []io.Closer{hw.flow}
	failLines := func(err error) (hardware, func(), error) {
		for _, c := range pending {
			c.Close()
		}
		return fail(err)
	}

	for _, id := range state.Devices {
		pins := cfg.Pins.Device1
		sensorID := cfg.OneWire.Device1
		if id == state.Device2 {
			pins = cfg.Pins.Device2
			sensorID = cfg.OneWire.Device2
		}

		in, err := chip.Input(pins.Level)
		if err != nil {
			return failLines(err)
		}
		pending = append(pending, in)
		hw.levels[id] = in

		var loads control.Loads
		for kind, pin := range map[state.Actuator]int{
			state.Heater: pins.Heater,
			state.Pump:   pins.Pump,
			state.Cooler: pins.Cooler,
		} {
			out, err := chip.Output(pin, cfg.Pins.RelayActiveLow)
			if err != nil {
				return failLines(err)
			}
			pending = append(pending, out)
			loads[kind] = out
		}
		hw.loads[id] = loads

		var lamps control.Lamps
		for kind, pin := range map[state.Alert]int{
			state.Warning: pins.WarnLamp,
			state.Alarm:   pins.AlarmLamp,
		} {
			out, err := chip.Output(pin, false)
			if err != nil {
				return failLines(err)
			}
			pending = append(pending, out)
			lamps[kind] = out
		}
		hw.lamps[id] = lamps

		if sensorID == "" {
			log.Warnw("no temperature sensor configured", "device", id)
			continue
		}
		async := onewire.NewAsync(onewire.NewSysfs(cfg.OneWire.BasePath, sensorID), cfg.Intervals.Temperature)
		go async.Run(ctx)
		hw.therms[id] = async
	}

	port, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud, log)
	if err != nil {
		return failLines(fmt.Errorf("open serial: %w", err))
	}
	hw.port = port

	return hw, release, nil
}

// printSensors reads each vessel's level switch and temperature sensor once
// and prints the resulting state.
func printSensors(cfg *config.Config, w io.Writer) error {
	chip, err := gpio.OpenChip(cfg.Pins.Chip)
	if err != nil {
		return err
	}
	defer chip.Close()

	store := state.New()
	for _, id := range state.Devices {
		pins, sensorID := cfg.Pins.Device1, cfg.OneWire.Device1
		if id == state.Device2 {
			pins, sensorID = cfg.Pins.Device2, cfg.OneWire.Device2
		}

		in, err := chip.Input(pins.Level)
		if err != nil {
			return err
		}
		raw, err := in.Read()
		in.Close()
		if err != nil {
			return err
		}
		ok := raw == cfg.Level.NormalHigh
		store.Update(id, state.Partial{WaterLevelOK: &ok})

		if sensorID == "" {
			continue
		}
		c, err := onewire.NewSysfs(cfg.OneWire.BasePath, sensorID).ReadCelsius()
		if err != nil {
			fmt.Fprintf(w, "%s: temperature unavailable: %v\n", id, err)
			continue
		}
		store.Update(id, state.Partial{Temperature: &c})
	}

	_, err = fmt.Fprint(w, store.ReadAll().Summary())
	return err
}
