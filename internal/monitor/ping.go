package monitor

import (
	"fmt"
	"time"

	"github.com/go-ping/ping"
)

type PingMetrics struct {
	AvgLatencyMs float64
	PacketLoss   float64
	JitterMs     float64
}

// PingMonitor probes the ONU over ICMP.
type PingMonitor struct {
	host       string
	count      int
	timeout    time.Duration
	privileged bool
}

func NewPingMonitor(host string, privileged bool) *PingMonitor {
	return &PingMonitor{
		host:       host,
		count:      3,
		timeout:    3 * time.Second,
		privileged: privileged,
	}
}

// Probe sends a short burst of echo requests and blocks until it
// completes or times out.
func (pm *PingMonitor) Probe() (PingMetrics, error) {
	pinger, err := ping.NewPinger(pm.host)
	if err != nil {
		return PingMetrics{}, fmt.Errorf("create pinger for %s: %w", pm.host, err)
	}

	pinger.Count = pm.count
	pinger.Timeout = pm.timeout
	pinger.SetPrivileged(pm.privileged)

	var previousRTT time.Duration
	var jitterTotal float64
	var jitterCount int

	pinger.OnRecv = func(pkt *ping.Packet) {
		if previousRTT != 0 {
			diff := pkt.Rtt - previousRTT
			if diff < 0 {
				diff = -diff
			}
			jitterTotal += float64(diff.Microseconds()) / 1000
			jitterCount++
		}
		previousRTT = pkt.Rtt
	}

	if err := pinger.Run(); err != nil {
		return PingMetrics{}, fmt.Errorf("ping %s: %w", pm.host, err)
	}

	stats := pinger.Statistics()

	jitter := 0.0
	if jitterCount > 0 {
		jitter = jitterTotal / float64(jitterCount)
	}

	return PingMetrics{
		AvgLatencyMs: float64(stats.AvgRtt.Microseconds()) / 1000,
		PacketLoss:   stats.PacketLoss,
		JitterMs:     jitter,
	}, nil
}
