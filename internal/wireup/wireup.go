// Package wireup performs the single startup wire-up phase named in
// spec.md §3 "Lifecycles": it creates every topic, registers it with the
// broker, constructs the hardware adapters and external collaborators,
// and starts every goroutine under one errgroup, mirroring the
// teacher's app.Run central orchestrator.
package wireup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/linux-automation/tacd/internal/broker"
	"github.com/linux-automation/tacd/internal/config"
	"github.com/linux-automation/tacd/internal/hw"
	"github.com/linux-automation/tacd/internal/iobusclient"
	"github.com/linux-automation/tacd/internal/journal"
	"github.com/linux-automation/tacd/internal/measurement"
	"github.com/linux-automation/tacd/internal/metrics"
	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/netinfo"
	"github.com/linux-automation/tacd/internal/rauc"
	"github.com/linux-automation/tacd/internal/supervisor"
	"github.com/linux-automation/tacd/internal/systemdsvc"
	"github.com/linux-automation/tacd/internal/tacerr"
	"github.com/linux-automation/tacd/internal/topic"
	"github.com/linux-automation/tacd/internal/transport/httpapi"
	"github.com/linux-automation/tacd/internal/transport/wsbus"
	"github.com/linux-automation/tacd/internal/ui"
	"github.com/linux-automation/tacd/internal/updatechannel"
)

// ledNames are the status LEDs named in spec.md §6, "Physical UI".
var ledNames = []string{"out_0", "out_1", "dut_pwr", "eth_dut", "eth_lab", "status"}

// systemdUnits are the units bridged onto the topic bus. Their exact
// identity is deployment-specific; this list is illustrative of the
// contract-only collaborator spec.md §4.6 describes.
var systemdUnits = []string{"tacd.service", "labgrid-exporter.service"}

// System is every wired-up component plus the http.Server fronting the
// whole network API surface, ready to be run.
type System struct {
	Broker  *broker.Broker
	Logger  *logrus.Logger
	Config  *config.Config
	httpSrv *http.Server
	wsHub   *wsbus.Hub

	runners []func(context.Context) error
}

// Build runs the wire-up phase: every topic is created and registered,
// every adapter and collaborator constructed (hardware adapters against
// stub backends), and the HTTP surface assembled. It never blocks; call Run to
// start the daemon.
func Build(cfg *config.Config, logger *logrus.Logger) (*System, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := broker.New(logger)
	sys := &System{Broker: b, Logger: logger, Config: cfg}

	bootRef := bootReference()

	pwrStatus := sys.wireDutPower(b, logger, bootRef)
	out0, out1 := sys.wireAuxOutputs(b, logger)
	statusLED, _ := sys.wireLEDs(b, logger)
	iobusHealth := sys.wireIOBus(b, logger, cfg)
	arb := sys.wireUI(b, logger, statusLED, pwrStatus, iobusHealth, out0, out1)
	sys.wireSystemd(b, logger)
	sys.wireNetinfo(b, logger, cfg)
	sys.wireRauc(b, logger, cfg)
	sys.wireUpdateChannels(b, logger, cfg)
	sys.wireSetupGate(b, logger, arb, cfg)

	metrics.Instrument(b)

	journalReader := journal.Reader(journal.JournalctlReader{})
	httpSrv := httpapi.NewServer(b, journalReader, logger)
	hub := wsbus.NewHub(b, logger)
	sys.wsHub = hub

	mux := http.NewServeMux()
	mux.Handle("/v1/mqtt", hub)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/v1/", httpSrv.Handler())

	sys.httpSrv = &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	sys.runners = append(sys.runners,
		sys.runHTTPServer,
		arb.Run,
		sys.pollWebsocketClients,
	)

	return sys, nil
}

// Run blocks, running every wired-up goroutine under one errgroup until
// ctx is cancelled or one of them fails.
func (s *System) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	for _, run := range s.runners {
		run := run
		grp.Go(func() error { return run(ctx) })
	}
	return grp.Wait()
}

func (s *System) runHTTPServer(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("wireup: http server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("wireup: http server: %w", err)
		}
		return nil
	}
}

// pollWebsocketClients feeds the live connection count into the
// websocket_clients gauge; kept out of internal/transport/wsbus so that
// package never needs to import internal/metrics directly.
func (s *System) pollWebsocketClients(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			metrics.SetWebsocketClients(s.wsHub.ClientCount())
		}
	}
}

func bootReference() time.Time {
	return time.Now()
}

func (s *System) wireDutPower(b *broker.Broker, logger *logrus.Logger, bootRef time.Time) *topic.Topic[model.DutPwrStatus] {
	status := topic.New[model.DutPwrStatus](logger, "dut/powered/status")
	request := topic.New[model.DutPwrRequest](logger, "dut/powered/request")
	voltage := topic.New[model.Measurement](logger, "dut/feedback/voltage")
	current := topic.New[model.Measurement](logger, "dut/feedback/current")

	broker.RegisterJSONRW(b, "/v1/dut/powered", status, request, nil)
	broker.RegisterJSON(b, "/v1/dut/feedback/voltage", voltage, false, nil)
	broker.RegisterJSON(b, "/v1/dut/feedback/current", current, false, nil)

	voltageInput := &hw.StubAnalogInput{Value: 12.0}
	currentInput := &hw.StubAnalogInput{Value: 0.1}

	voltageRing := measurement.NewRing[model.Measurement](64)
	currentRing := measurement.NewRing[model.Measurement](64)

	enable := hw.NewStubOutput("dut_pwr_enable", false)
	float := hw.NewStubOutput("dut_pwr_float", true)
	sw := &hw.DutSwitch{Enable: enable, Float: float}

	sv := &supervisor.Supervisor{
		Limits:         supervisor.DefaultLimits,
		Switch:         sw,
		VoltageRing:    voltageRing,
		CurrentRing:    currentRing,
		Requests:       request,
		Status:         status,
		Logger:         logger,
		JitterObserver: metrics.ObserveSupervisorJitter,
	}
	s.runners = append(s.runners, sv.Run)

	// Two samplers per channel: a 1 kHz ring-only feed for the
	// supervisor's fast path, and a slower topic-only feed for the UI
	// and REST surface, per spec.md §4.2's "20-100ms UI / 1ms
	// supervisor" cadence split.
	s.runners = append(s.runners,
		(&measurement.Sampler{Name: "dut_voltage_fast", Period: supervisor.Period, Read: hw.ReadFunc(voltageInput), Ring: voltageRing, Logger: logger, BootRef: bootRef}).Run,
		(&measurement.Sampler{Name: "dut_current_fast", Period: supervisor.Period, Read: hw.ReadFunc(currentInput), Ring: currentRing, Logger: logger, BootRef: bootRef}).Run,
		(&measurement.Sampler{Name: "dut_voltage", Period: 50 * time.Millisecond, Read: hw.ReadFunc(voltageInput), Topic: voltage, Logger: logger, BootRef: bootRef}).Run,
		(&measurement.Sampler{Name: "dut_current", Period: 50 * time.Millisecond, Read: hw.ReadFunc(currentInput), Topic: current, Logger: logger, BootRef: bootRef}).Run,
	)

	return status
}

// wireAuxOutputs registers the isolated digital outputs, USB hub power
// enable, and the IOBus power-supply enable line: every other
// single-writer-per-resource hardware line named in spec.md §3 besides
// the DUT switch and the LEDs.
func (s *System) wireAuxOutputs(b *broker.Broker, logger *logrus.Logger) (out0, out1 *topic.Topic[bool]) {
	type line struct {
		name string
		path string
	}
	lines := []line{
		{"output_0", "/v1/output/0"},
		{"output_1", "/v1/output/1"},
		{"usb_host_power", "/v1/usb/powered"},
		{"iobus_pwr_enable", "/v1/iobus/pwr/powered"},
	}
	topics := make(map[string]*topic.Topic[bool], len(lines))
	for _, l := range lines {
		out := hw.NewStubOutput(l.name, false)
		t := topic.New[bool](logger, l.name)
		t.Publish(false)
		broker.RegisterJSON(b, l.path, t, true, nil)
		t.Subscribe(func(_, _ uint64, on bool) {
			if err := out.Set(on); err != nil {
				logger.WithFields(logrus.Fields{"line": l.name, "error": err}).Warn("wireup: output actuation failed")
			}
		})
		topics[l.name] = t
	}
	return topics["output_0"], topics["output_1"]
}

func (s *System) wireLEDs(b *broker.Broker, logger *logrus.Logger) (*topic.Topic[model.BlinkPattern], map[string]*topic.Topic[model.BlinkPattern]) {
	outputs := make(map[string]hw.PWMOutput, len(ledNames))
	for _, name := range ledNames {
		outputs[name] = hw.NewStubPWM()
	}
	driver := hw.NewLEDDriver(10*time.Millisecond, outputs)
	s.runners = append(s.runners, driver.Run)

	topics := make(map[string]*topic.Topic[model.BlinkPattern], len(ledNames))
	for _, name := range ledNames {
		t := topic.New[model.BlinkPattern](logger, "led/"+name)
		t.Publish(model.Off)
		driver.Subscribe(name, t)
		broker.RegisterJSON(b, "/v1/tac/led/"+name, t, true, nil)
		topics[name] = t
	}
	return topics["status"], topics
}

func (s *System) wireUI(
	b *broker.Broker,
	logger *logrus.Logger,
	statusLED *topic.Topic[model.BlinkPattern],
	pwrStatus *topic.Topic[model.DutPwrStatus],
	iobusHealth *topic.Topic[bool],
	output0, output1 *topic.Topic[bool],
) *ui.Arbiter {
	lcd := hw.NewLCD(128, 64)
	edges := hw.NewStubEdgeSource()

	buttons := make(chan model.ButtonEvent, 16)
	reader := hw.NewButtonReader(edges, func(e model.ButtonEvent) {
		select {
		case buttons <- e:
		default:
		}
	})
	s.runners = append(s.runners, reader.Run)

	arb := ui.NewArbiter(lcd, buttons)
	arb.Logger = logger
	arb.ActiveScreen = topic.New[model.Screen](logger, "tac/display/active_screen")
	arb.Alerts = topic.New[[]model.AlertKind](logger, "tac/display/alerts")
	arb.SetupMode = topic.New[bool](logger, "tac/setup_mode")
	arb.Locator = topic.New[bool](logger, "tac/display/locator")
	arb.DisplayContent = topic.New[[]byte](logger, "tac/display/content")
	arb.StatusLED = statusLED

	broker.RegisterJSON(b, "/v1/tac/display/active_screen", arb.ActiveScreen, false, nil)
	broker.RegisterJSON(b, "/v1/tac/display/alerts", arb.Alerts, false, nil)
	broker.RegisterJSON(b, "/v1/tac/display/locator", arb.Locator, true, nil)
	broker.RegisterBinary(b, "/v1/tac/display/content", "image/png", arb.DisplayContent)

	// setup_mode starts true: the daemon boots into setup mode until an
	// operator explicitly leaves it, matching spec.md §8 scenario 4
	// where the first leave-setup-mode PUT must succeed. Re-entry from
	// REST is blocked by the gate installed in wireSetupGate; only the
	// physical button sequence (handled in ui.Arbiter) re-enters it.
	arb.SetupMode.Publish(true)
	broker.RegisterJSON(b, "/v1/tac/setup_mode", arb.SetupMode, true, setupModeWriteGate(arb.SetupMode))

	registerScreens(arb, pwrStatus, iobusHealth, output0, output1)

	// /v1/tac/display/buttons lets an external caller inject a button
	// event directly (spec.md §8 scenario 6), forwarded into the same
	// channel the physical evdev reader feeds.
	buttonTopic := topic.New[model.ButtonEvent](logger, "tac/display/buttons")
	broker.RegisterJSON(b, "/v1/tac/display/buttons", buttonTopic, true, nil)
	buttonTopic.Subscribe(func(_, _ uint64, e model.ButtonEvent) {
		select {
		case buttons <- e:
		default:
		}
	})

	return arb
}

// setupModeWriteGate blocks any external write to setup_mode unless the
// current retained value is true: leaving setup mode (true->false) is
// allowed, but re-entering it over REST is not (spec.md §4.4 requires
// the physical button sequence for that).
func setupModeWriteGate(t *topic.Topic[bool]) broker.GateFunc {
	return func() error {
		on, _, ok := t.Get()
		if !ok || !on {
			return tacerr.New(tacerr.Forbidden, "setup mode is not currently active")
		}
		return nil
	}
}

func (s *System) wireSetupGate(b *broker.Broker, logger *logrus.Logger, arb *ui.Arbiter, cfg *config.Config) {
	keysTopic := topic.New[string](logger, "tac/ssh/authorized_keys")
	gate := setupModeWriteGate(arb.SetupMode)
	broker.RegisterJSON(b, "/v1/tac/ssh/authorized_keys", keysTopic, true, gate)

	keysTopic.Subscribe(func(_, _ uint64, key string) {
		if err := appendAuthorizedKey(cfg.AuthorizedKeysPath, key); err != nil {
			logger.WithError(err).Error("wireup: failed to write authorized key")
		}
	})

	watcher, err := config.WatchAuthorizedKeys(cfg.AuthorizedKeysPath, logger, func() {
		logger.Info("wireup: authorized_keys changed on disk")
	})
	if err != nil {
		logger.WithError(err).Warn("wireup: not watching authorized_keys for external changes")
		return
	}
	s.runners = append(s.runners, func(ctx context.Context) error {
		<-ctx.Done()
		return watcher.Close()
	})
}

func (s *System) wireSystemd(b *broker.Broker, logger *logrus.Logger) {
	for _, unit := range systemdUnits {
		unit := unit
		backend := systemdsvc.NewStubBackend()
		statusTopic := topic.New[model.ServiceStatus](logger, "system/services/"+unit+"/status")
		actionTopic := topic.New[model.ServiceAction](logger, "system/services/"+unit+"/action")

		broker.RegisterJSON(b, "/v1/system/services/"+unit+"/status", statusTopic, false, nil)
		broker.RegisterJSON(b, "/v1/system/services/"+unit+"/action", actionTopic, true, nil)

		u := &systemdsvc.Unit{Name: unit, Backend: backend, Status: statusTopic, Action: actionTopic, Period: 5 * time.Second, Logger: logger}
		s.runners = append(s.runners, u.Run)
	}
}

func (s *System) wireNetinfo(b *broker.Broker, logger *logrus.Logger, cfg *config.Config) {
	info := topic.New[model.NetworkInfo](logger, "system/network")
	hostname := topic.New[string](logger, "system/hostname")

	broker.RegisterJSON(b, "/v1/system/network", info, false, nil)
	broker.RegisterJSON(b, "/v1/system/hostname", hostname, true, nil)

	poller := &netinfo.Poller{
		Links:    netinfo.SysfsLinkReader{},
		Setter:   netinfo.HostnamectlSetter{},
		Period:   cfg.NetinfoPollInterval,
		Logger:   logger,
		Info:     info,
		Hostname: hostname,
	}
	s.runners = append(s.runners, poller.Run)
}

func (s *System) wireRauc(b *broker.Broker, logger *logrus.Logger, cfg *config.Config) {
	backend := &rauc.StubBackend{SlotTable: model.RaucSlots{}}

	operation := topic.New[model.RaucOperation](logger, "system/update/rauc/operation")
	slots := topic.New[model.RaucSlots](logger, "system/update/rauc/slots")
	lastErr := topic.New[string](logger, "system/update/rauc/last_error")
	shouldReboot := topic.New[bool](logger, "system/update/rauc/should_reboot")
	install := topic.New[model.RaucInstallRequest](logger, "system/update/rauc/install")

	broker.RegisterJSON(b, "/v1/system/update/rauc/operation", operation, false, nil)
	broker.RegisterJSON(b, "/v1/system/update/rauc/slots", slots, false, nil)
	broker.RegisterJSON(b, "/v1/system/update/rauc/last_error", lastErr, false, nil)
	broker.RegisterJSON(b, "/v1/system/update/rauc/should_reboot", shouldReboot, false, nil)
	broker.RegisterJSON(b, "/v1/system/update/rauc/install", install, true, nil)

	adapter := &rauc.Adapter{
		Backend:      backend,
		Period:       cfg.RaucPollInterval,
		Logger:       logger,
		Operation:    operation,
		Slots:        slots,
		LastError:    lastErr,
		ShouldReboot: shouldReboot,
		Install:      install,
	}
	s.runners = append(s.runners, adapter.Run)
}

func (s *System) wireUpdateChannels(b *broker.Broker, logger *logrus.Logger, cfg *config.Config) {
	channels := topic.New[[]model.UpdateChannel](logger, "system/update/channels")
	reload := topic.New[bool](logger, "system/update/channels/reload")

	broker.RegisterJSON(b, "/v1/system/update/channels", channels, false, nil)
	broker.RegisterJSON(b, "/v1/system/update/channels/reload", reload, true, nil)

	poller := updatechannel.NewPoller(cfg.UpdateChannelConfigs(), channels)
	poller.Reload = reload
	poller.Logger = logger
	s.runners = append(s.runners, poller.Run)
}

func (s *System) wireIOBus(b *broker.Broker, logger *logrus.Logger, cfg *config.Config) *topic.Topic[bool] {
	info := topic.New[model.IOBusServerInfo](logger, "iobus/server/info")
	nodes := topic.New[[]model.IOBusNodeInfo](logger, "iobus/server/nodes")
	health := topic.New[bool](logger, "iobus/server/health")

	broker.RegisterJSON(b, "/v1/iobus/server/info", info, false, nil)
	broker.RegisterJSON(b, "/v1/iobus/server/nodes", nodes, false, nil)
	broker.RegisterJSON(b, "/v1/iobus/server/health", health, false, nil)

	client := &iobusclient.Client{
		Backend:    iobusclient.NewHTTPBackend(cfg.IOBusURL),
		Period:     cfg.IOBusPollInterval,
		StaleAfter: cfg.IOBusStaleAfter,
		Logger:     logger,
		Info:       info,
		Nodes:      nodes,
		Health:     health,
	}
	s.runners = append(s.runners, client.Run)

	return health
}

func appendAuthorizedKey(path, key string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("wireup: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.WriteString(key + "\n")
	return err
}
