package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bilal/g55-agent/internal/communicator"
	"github.com/bilal/g55-agent/internal/config"
	"github.com/bilal/g55-agent/internal/decision"
	"github.com/bilal/g55-agent/internal/onu"
	"github.com/bilal/g55-agent/internal/scrape"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrFatal is returned by Run when the router rejected a fresh login
// after the status page failed. The process is expected to exit.
var ErrFatal = errors.New("cannot authenticate with onu")

// Router is the ONU session: page fetches and login share one client.
type Router interface {
	Fetch(ctx context.Context, page onu.Page) (string, error)
	Authenticate(ctx context.Context) (string, error)
}

// Publisher delivers messages to the broker, best-effort.
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []communicator.Message)
	PublishOne(ctx context.Context, topic, payload string)
}

// TelemetrySink receives one record per published cycle.
type TelemetrySink interface {
	PublishTelemetry(ctx context.Context, t communicator.Telemetry) error
}

// Prober measures reachability of the ONU.
type Prober interface {
	Probe() (PingMetrics, error)
}

// Reporter is told about state changes, e.g. the health endpoint.
type Reporter interface {
	SetState(state string)
	SetAuthenticated(ok bool)
	SetLastCycle(t time.Time)
	SetPingHealthy(ok bool)
}

type Option func(*Monitor)

func WithSink(s TelemetrySink) Option { return func(m *Monitor) { m.sink = s } }
func WithProber(p Prober) Option { return func(m *Monitor) { m.prober = p } }
func WithReporter(r Reporter) Option { return func(m *Monitor) { m.reporter = r } }

// WithSleep replaces the context-aware sleep used for the poll interval
// and the phase pauses.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Monitor) { m.sleep = f }
}

// Monitor drives the poll cycle through the decision engine.
type Monitor struct {
	host     string
	interval time.Duration
	pause    time.Duration
	topics   communicator.Topics

	router   Router
	pub      Publisher
	sink     TelemetrySink
	prober   Prober
	reporter Reporter
	sleep    func(ctx context.Context, d time.Duration) error

	engine    *decision.Engine
	discovery []communicator.Message

	// per-cycle state, reset in AwaitInterval
	cycleID    string
	statusPage string
	alarmsPage string
	statusSnap scrape.Snapshot
	alarmsSnap scrape.Snapshot
	token      string
	loggedIn   bool
}

func New(cfg *config.Config, router Router, pub Publisher, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		host:     cfg.ONU.IP,
		interval: cfg.Interval(),
		pause:    cfg.PhasePause(),
		topics:   communicator.Topics{Prefix: cfg.MQTT.DiscoveryPrefix},
		router:   router,
		pub:      pub,
		sleep:    sleepCtx,
		engine:   decision.NewEngine(),
	}
	for _, o := range opts {
		o(m)
	}

	discovery, err := communicator.Discovery(m.topics, communicator.Sensors(m.prober != nil))
	if err != nil {
		return nil, fmt.Errorf("build discovery catalog: %w", err)
	}
	m.discovery = discovery
	return m, nil
}

// State is the engine's current state.
func (m *Monitor) State() decision.PollState { return m.engine.State() }

// Run steps the cycle until ctx is cancelled or the engine goes Fatal.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Str("onu", m.host).Dur("interval", m.interval).Msg("monitor started")
	for {
		if err := m.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("monitor stopping")
			}
			return err
		}
	}
}

// Step does the work of the current state and advances the engine.
func (m *Monitor) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := m.engine.State()
	ok, err := m.do(ctx, state)
	if err != nil {
		return err
	}

	next := m.engine.Evaluate(ok)
	if m.reporter != nil {
		m.reporter.SetState(string(next))
	}
	log.Debug().Str("cycle", m.cycleID).Str("from", string(state)).Str("to", string(next)).Msg("state transition")

	if next == decision.Fatal {
		return ErrFatal
	}
	return nil
}

func (m *Monitor) do(ctx context.Context, state decision.PollState) (bool, error) {
	switch state {
	case decision.Idle:
		return true, nil

	case decision.Announce:
		m.pub.PublishBatch(ctx, m.discovery)
		m.publishStatus(ctx, communicator.StatusWorking)
		return true, nil

	case decision.AwaitInterval:
		if err := m.sleep(ctx, m.interval); err != nil {
			return false, err
		}
		m.startCycle()
		return true, nil

	case decision.FetchStatus:
		body, err := m.router.Fetch(ctx, onu.StatusPage)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			m.reportFailure(ctx, err)
			return false, nil
		}
		m.statusPage = body
		return true, nil

	case decision.Authenticate:
		m.publishStatus(ctx, communicator.StatusAuthorizing)
		log.Info().Str("cycle", m.cycleID).Msg("authorizing")
		token, err := m.router.Authenticate(ctx)
		// shutdown during login is not a rejected login
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			m.reportFailure(ctx, err)
			m.publishStatus(ctx, communicator.StatusCantAuth)
			log.Error().Err(err).Str("cycle", m.cycleID).Msg("can't authenticate")
			if m.reporter != nil {
				m.reporter.SetAuthenticated(false)
			}
			return false, nil
		}
		m.token, m.loggedIn = token, true
		if m.reporter != nil {
			m.reporter.SetAuthenticated(true)
		}
		return true, nil

	case decision.ExtractStatus:
		m.statusSnap = scrape.Extract(m.statusPage, scrape.StatusFields())
		return true, m.sleep(ctx, m.pause)

	case decision.FetchAlarms:
		body, err := m.router.Fetch(ctx, onu.AlarmsPage)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			m.reportFailure(ctx, err)
			return false, nil
		}
		m.alarmsPage = body
		return true, nil

	case decision.ExtractAlarms:
		m.alarmsSnap = scrape.Extract(m.alarmsPage, scrape.AlarmFields())
		return true, nil

	case decision.Publish:
		m.publishCycle(ctx)
		return true, m.sleep(ctx, m.pause)
	}

	return false, fmt.Errorf("no work defined for state %s", state)
}

func (m *Monitor) startCycle() {
	m.cycleID = uuid.New().String()
	m.statusPage = ""
	m.alarmsPage = ""
	m.statusSnap = scrape.Snapshot{}
	m.alarmsSnap = scrape.Snapshot{}
	m.token, m.loggedIn = "", false
}

func (m *Monitor) publishStatus(ctx context.Context, text string) {
	m.pub.PublishOne(ctx, m.topics.State(communicator.ParserStatus), text)
}

func (m *Monitor) reportFailure(ctx context.Context, err error) {
	log.Warn().Err(err).Str("cycle", m.cycleID).Bool("retried", m.engine.Retried()).Msg("onu request failed")
	m.publishStatus(ctx, onu.Diagnostic(err))
}

func (m *Monitor) publishCycle(ctx context.Context) {
	var msgs []communicator.Message
	values := make(map[string]string)

	add := func(key, payload string) {
		msgs = append(msgs, communicator.Message{Topic: m.topics.State(key), Payload: payload})
		values[key] = payload
	}

	if m.loggedIn {
		add(communicator.AuthToken, m.token)
	}
	snap := m.statusSnap.Merge(m.alarmsSnap)
	msgs = append(msgs, communicator.States(m.topics, snap)...)
	for _, r := range snap.Readings() {
		values[r.Key] = r.Value.String()
	}

	if m.prober != nil {
		pm, err := m.prober.Probe()
		if m.reporter != nil {
			m.reporter.SetPingHealthy(err == nil && pm.PacketLoss < 100)
		}
		if err != nil {
			log.Warn().Err(err).Str("onu", m.host).Msg("ping probe failed")
		} else {
			log.Debug().
				Float64("latency_ms", pm.AvgLatencyMs).
				Float64("packet_loss", pm.PacketLoss).
				Float64("jitter_ms", pm.JitterMs).
				Msg("ping probe")
			add(communicator.PingLatency, scrape.Float(pm.AvgLatencyMs).String())
			add(communicator.PingLoss, scrape.Float(pm.PacketLoss).String())
		}
	}

	m.pub.PublishBatch(ctx, msgs)

	now := time.Now()
	if m.reporter != nil {
		m.reporter.SetLastCycle(now)
	}
	log.Info().
		Str("cycle", m.cycleID).
		Int("messages", len(msgs)).
		Str("rx_power", values[scrape.RxPower]).
		Str("loid_state", values[scrape.LoidState]).
		Msg("cycle published")

	if m.sink != nil {
		err := m.sink.PublishTelemetry(ctx, communicator.Telemetry{
			CycleID:   m.cycleID,
			Timestamp: now,
			Host:      m.host,
			Values:    values,
		})
		if err != nil {
			log.Warn().Err(err).Str("cycle", m.cycleID).Msg("telemetry mirror failed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
