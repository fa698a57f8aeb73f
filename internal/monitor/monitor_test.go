package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bilal/g55-agent/internal/communicator"
	"github.com/bilal/g55-agent/internal/config"
	"github.com/bilal/g55-agent/internal/decision"
	"github.com/bilal/g55-agent/internal/onu"
)

const (
	statusBody = `var RxPower = "-123456"; Transfer_meaning('LoidState','1');`
	alarmsBody = `<td id="Frm_System" name="Frm_System" class="tdright">3</td>`
)

type result struct {
	body string
	err  error
}

// fakeRouter replays scripted results. An exhausted script answers with
// the last entry.
type fakeRouter struct {
	status []result
	alarms []result
	auth   []result

	// called before a scripted result is returned
	onFetch func(onu.Page)
	onAuth  func()

	statusCalls int
	alarmCalls  int
	authCalls   int
	calls       []string
}

func next(script []result, n int) result {
	if len(script) == 0 {
		return result{}
	}
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

func (f *fakeRouter) Fetch(_ context.Context, page onu.Page) (string, error) {
	if f.onFetch != nil {
		f.onFetch(page)
	}
	if page == onu.StatusPage {
		r := next(f.status, f.statusCalls)
		f.statusCalls++
		f.calls = append(f.calls, "status")
		return r.body, r.err
	}
	r := next(f.alarms, f.alarmCalls)
	f.alarmCalls++
	f.calls = append(f.calls, "alarms")
	return r.body, r.err
}

func (f *fakeRouter) Authenticate(context.Context) (string, error) {
	if f.onAuth != nil {
		f.onAuth()
	}
	r := next(f.auth, f.authCalls)
	f.authCalls++
	f.calls = append(f.calls, "auth")
	return r.body, r.err
}

type fakePublisher struct {
	batches [][]communicator.Message
	singles []communicator.Message
}

func (p *fakePublisher) PublishBatch(_ context.Context, msgs []communicator.Message) {
	p.batches = append(p.batches, append([]communicator.Message(nil), msgs...))
}

func (p *fakePublisher) PublishOne(_ context.Context, topic, payload string) {
	p.singles = append(p.singles, communicator.Message{Topic: topic, Payload: payload})
}

func (p *fakePublisher) statuses() []string {
	var out []string
	for _, m := range p.singles {
		if m.Topic == "homeassistant/sensor/g55_parser_status/state" {
			out = append(out, m.Payload)
		}
	}
	return out
}

type fakeSink struct{ records []communicator.Telemetry }

func (s *fakeSink) PublishTelemetry(_ context.Context, t communicator.Telemetry) error {
	s.records = append(s.records, t)
	return nil
}

type fakeProber struct {
	m   PingMetrics
	err error
}

func (p fakeProber) Probe() (PingMetrics, error) { return p.m, p.err }

func testConfig() *config.Config {
	return &config.Config{
		Run:  config.RunConfig{SleepTime: 60, Pause: 0.1},
		MQTT: config.MQTTConfig{DiscoveryPrefix: "homeassistant"},
		ONU:  config.ONUConfig{IP: "192.168.1.1"},
	}
}

type sleepLog struct{ d []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return nil
}

func newTestMonitor(t *testing.T, r Router, opts ...Option) (*Monitor, *fakePublisher, *sleepLog) {
	t.Helper()
	pub := &fakePublisher{}
	sl := &sleepLog{}
	m, err := New(testConfig(), r, pub, append([]Option{WithSleep(sl.sleep)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, pub, sl
}

// runCycle steps from the current state through one Publish, or until
// a step fails.
func runCycle(t *testing.T, m *Monitor) error {
	t.Helper()
	for i := 0; i < 50; i++ {
		before := m.State()
		if err := m.Step(context.Background()); err != nil {
			return err
		}
		if before == decision.Publish {
			return nil
		}
	}
	t.Fatal("cycle did not complete in 50 steps")
	return nil
}

func payloads(msgs []communicator.Message) map[string]string {
	out := make(map[string]string, len(msgs))
	for _, m := range msgs {
		out[m.Topic] = m.Payload
	}
	return out
}

func TestMonitor_HappyCycle(t *testing.T) {
	r := &fakeRouter{
		status: []result{{body: statusBody}},
		alarms: []result{{body: alarmsBody}},
	}
	m, pub, sl := newTestMonitor(t, r)

	if err := runCycle(t, m); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}

	if want := []string{"status", "alarms"}; !equalStrings(r.calls, want) {
		t.Errorf("router calls = %v, want %v", r.calls, want)
	}
	if got := pub.statuses(); !equalStrings(got, []string{"Working"}) {
		t.Errorf("parser statuses = %v, want [Working]", got)
	}

	if len(pub.batches) != 2 {
		t.Fatalf("got %d batches, want discovery + states", len(pub.batches))
	}
	if len(pub.batches[0]) != 15 {
		t.Errorf("discovery batch has %d messages, want 15", len(pub.batches[0]))
	}

	states := payloads(pub.batches[1])
	if len(states) != 13 {
		t.Errorf("state batch has %d messages, want 13", len(states))
	}
	if got := states["homeassistant/sensor/g55_rx_power/state"]; got != "-12.35" {
		t.Errorf("rx_power = %q, want -12.35", got)
	}
	if got := states["homeassistant/sensor/g55_loid_state/state"]; got != "Authentication Success" {
		t.Errorf("loid_state = %q", got)
	}
	if got := states["homeassistant/sensor/g55_PonSymPerAlarm/state"]; got != "3" {
		t.Errorf("PonSymPerAlarm = %q, want 3", got)
	}
	if got := states["homeassistant/sensor/g55_tx_power/state"]; got != "0.0" {
		t.Errorf("tx_power = %q, want default 0.0", got)
	}
	if _, ok := states["homeassistant/sensor/g55_auth_token/state"]; ok {
		t.Error("auth_token published without a login")
	}

	want := []time.Duration{60 * time.Second, 100 * time.Millisecond, 100 * time.Millisecond}
	if len(sl.d) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sl.d, want)
	}
	for i := range want {
		if sl.d[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sl.d[i], want[i])
		}
	}
	if m.State() != decision.Announce {
		t.Errorf("state after publish = %s, want %s", m.State(), decision.Announce)
	}
}

func TestMonitor_ReauthRetriesStatusOnce(t *testing.T) {
	r := &fakeRouter{
		status: []result{{err: onu.ErrNotAuthorized}, {body: statusBody}},
		alarms: []result{{body: alarmsBody}},
		auth:   []result{{body: "tok123"}},
	}
	m, pub, _ := newTestMonitor(t, r)

	if err := runCycle(t, m); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}

	if want := []string{"status", "auth", "status", "alarms"}; !equalStrings(r.calls, want) {
		t.Errorf("router calls = %v, want %v", r.calls, want)
	}
	if want := []string{"Working", "Not authorized", "Authorizing"}; !equalStrings(pub.statuses(), want) {
		t.Errorf("parser statuses = %v, want %v", pub.statuses(), want)
	}

	batch := pub.batches[len(pub.batches)-1]
	if batch[0].Topic != "homeassistant/sensor/g55_auth_token/state" || batch[0].Payload != "tok123" {
		t.Errorf("first state message = %+v, want auth token", batch[0])
	}
	if got := payloads(batch)["homeassistant/sensor/g55_rx_power/state"]; got != "-12.35" {
		t.Errorf("rx_power after retry = %q", got)
	}
}

func TestMonitor_AuthFailureIsFatal(t *testing.T) {
	r := &fakeRouter{
		status: []result{{err: &onu.StatusError{Op: "Status Page", Code: 500}}},
		auth:   []result{{err: onu.ErrTokenNotFound}},
	}
	m, pub, _ := newTestMonitor(t, r)

	err := runCycle(t, m)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("runCycle() error = %v, want ErrFatal", err)
	}
	if m.State() != decision.Fatal {
		t.Errorf("state = %s, want %s", m.State(), decision.Fatal)
	}
	if r.alarmCalls != 0 {
		t.Errorf("alarms fetched %d times after fatal auth failure", r.alarmCalls)
	}
	want := []string{"Working", "Status Page Error 500", "Authorizing", "Login token not found", "Can't authenticate"}
	if !equalStrings(pub.statuses(), want) {
		t.Errorf("parser statuses = %v, want %v", pub.statuses(), want)
	}
	if len(pub.batches) != 1 {
		t.Errorf("got %d batches, want only discovery", len(pub.batches))
	}
}

func TestMonitor_RetryFailureDegradesToDefaults(t *testing.T) {
	r := &fakeRouter{
		status: []result{{err: onu.ErrNotAuthorized}},
		alarms: []result{{body: alarmsBody}},
		auth:   []result{{body: "tok"}},
	}
	m, pub, _ := newTestMonitor(t, r)

	if err := runCycle(t, m); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if r.statusCalls != 2 || r.authCalls != 1 {
		t.Errorf("status calls = %d, auth calls = %d, want 2 and 1", r.statusCalls, r.authCalls)
	}
	states := payloads(pub.batches[len(pub.batches)-1])
	if got := states["homeassistant/sensor/g55_rx_power/state"]; got != "0.0" {
		t.Errorf("rx_power = %q, want default 0.0", got)
	}
}

func TestMonitor_AlarmFailureDoesNotEscalate(t *testing.T) {
	r := &fakeRouter{
		status: []result{{body: statusBody}},
		alarms: []result{{err: &onu.StatusError{Op: "Alerts Page", Code: 404}}},
	}
	m, pub, _ := newTestMonitor(t, r)

	if err := runCycle(t, m); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if r.authCalls != 0 {
		t.Errorf("authenticated %d times on alarm failure", r.authCalls)
	}
	if want := []string{"Working", "Alerts Page Error 404"}; !equalStrings(pub.statuses(), want) {
		t.Errorf("parser statuses = %v, want %v", pub.statuses(), want)
	}
	states := payloads(pub.batches[len(pub.batches)-1])
	if got, ok := states["homeassistant/sensor/g55_PonLinkAlarm/state"]; !ok || got != "" {
		t.Errorf("PonLinkAlarm = %q (present %v), want empty default", got, ok)
	}
}

func TestMonitor_NoStaleValuesAcrossCycles(t *testing.T) {
	r := &fakeRouter{
		status: []result{{body: statusBody}, {body: "<html></html>"}},
		alarms: []result{{body: alarmsBody}},
	}
	m, pub, _ := newTestMonitor(t, r)

	for i := 0; i < 2; i++ {
		if err := runCycle(t, m); err != nil {
			t.Fatalf("cycle %d error = %v", i, err)
		}
	}
	states := payloads(pub.batches[len(pub.batches)-1])
	if got := states["homeassistant/sensor/g55_rx_power/state"]; got != "0.0" {
		t.Errorf("second cycle rx_power = %q, want default 0.0", got)
	}
	if got := states["homeassistant/sensor/g55_loid_state/state"]; got != "" {
		t.Errorf("second cycle loid_state = %q, want empty", got)
	}
}

func TestMonitor_AnnounceIsIdempotent(t *testing.T) {
	r := &fakeRouter{status: []result{{body: statusBody}}, alarms: []result{{body: alarmsBody}}}
	m, pub, _ := newTestMonitor(t, r)

	for i := 0; i < 2; i++ {
		if err := runCycle(t, m); err != nil {
			t.Fatalf("cycle %d error = %v", i, err)
		}
	}
	// batches: discovery, states, discovery, states
	if len(pub.batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(pub.batches))
	}
	first, second := pub.batches[0], pub.batches[2]
	if len(first) != len(second) {
		t.Fatalf("discovery sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("discovery message %d differs", i)
		}
	}
}

func TestMonitor_SinkAndProber(t *testing.T) {
	r := &fakeRouter{status: []result{{body: statusBody}}, alarms: []result{{body: alarmsBody}}}
	sink := &fakeSink{}
	m, pub, _ := newTestMonitor(t, r,
		WithSink(sink),
		WithProber(fakeProber{m: PingMetrics{AvgLatencyMs: 1.25, PacketLoss: 0}}),
	)

	if err := runCycle(t, m); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if len(pub.batches[0]) != 17 {
		t.Errorf("discovery with ping has %d messages, want 17", len(pub.batches[0]))
	}
	states := payloads(pub.batches[1])
	if got := states["homeassistant/sensor/g55_ping_latency/state"]; got != "1.25" {
		t.Errorf("ping_latency = %q, want 1.25", got)
	}
	if got := states["homeassistant/sensor/g55_ping_loss/state"]; got != "0.0" {
		t.Errorf("ping_loss = %q, want 0.0", got)
	}

	if len(sink.records) != 1 {
		t.Fatalf("sink got %d records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.CycleID == "" || rec.Host != "192.168.1.1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Values["rx_power"] != "-12.35" || rec.Values["ping_latency"] != "1.25" {
		t.Errorf("record values = %v", rec.Values)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	r := &fakeRouter{status: []result{{body: statusBody}}}
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	m, err := New(testConfig(), r, pub, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if r.statusCalls != 0 {
		t.Errorf("status fetched %d times after cancel", r.statusCalls)
	}
}

func TestMonitor_RunReturnsFatal(t *testing.T) {
	r := &fakeRouter{
		status: []result{{err: onu.ErrNotAuthorized}},
		auth:   []result{{err: onu.ErrLoginUnsuccessful}},
	}
	m, _, _ := newTestMonitor(t, r)

	if err := m.Run(context.Background()); !errors.Is(err, ErrFatal) {
		t.Errorf("Run() error = %v, want ErrFatal", err)
	}
}

func TestMonitor_CancelDuringLoginIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeRouter{
		status: []result{{err: onu.ErrNotAuthorized}},
		auth:   []result{{err: &onu.StatusError{Op: "Authorization", Err: context.Canceled}}},
		onAuth: cancel,
	}
	m, pub, _ := newTestMonitor(t, r)

	err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrFatal) {
		t.Error("Run() returned ErrFatal on shutdown")
	}
	if m.State() == decision.Fatal {
		t.Errorf("state = %s after shutdown", m.State())
	}
	if want := []string{"Working", "Not authorized", "Authorizing"}; !equalStrings(pub.statuses(), want) {
		t.Errorf("parser statuses = %v, want %v", pub.statuses(), want)
	}
}

func TestMonitor_CancelDuringFetchPublishesNoDiagnostic(t *testing.T) {
	tests := []struct {
		name string
		page onu.Page
	}{
		{"status", onu.StatusPage},
		{"alarms", onu.AlarmsPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			r := &fakeRouter{
				status: []result{{body: statusBody}},
				alarms: []result{{body: alarmsBody}},
			}
			r.onFetch = func(p onu.Page) {
				if p == tt.page {
					cancel()
					r.status = []result{{err: &onu.StatusError{Op: "Status Page", Err: context.Canceled}}}
					r.alarms = []result{{err: &onu.StatusError{Op: "Alerts Page", Err: context.Canceled}}}
				}
			}
			m, pub, _ := newTestMonitor(t, r)

			if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("Run() error = %v, want context.Canceled", err)
			}
			if r.authCalls != 0 {
				t.Errorf("authenticated %d times during shutdown", r.authCalls)
			}
			if got := pub.statuses(); !equalStrings(got, []string{"Working"}) {
				t.Errorf("parser statuses = %v, want [Working]", got)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
