// Package upnp drives a NAT port mapping through a home router's UPnP IGD
// service, tracked as a small state machine: idle, manual, mapping, active,
// failed. A manual external URL always overrides UPnP.
package upnp

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/animedb/animedb-node/internal/metrics"
)

// State is the NAT/UPnP manager's current mode.
type State string

const (
	StateIdle    State = "idle"
	StateManual  State = "manual"
	StateMapping State = "mapping"
	StateActive  State = "active"
	StateFailed  State = "failed"
)

const description = "AnimeDB"

// RenewCallback is invoked whenever the external IP changes during a renewal
// tick; the Announce Dispatcher subscribes to this.
type RenewCallback func(externalURL string)

// client is the subset of goupnp's WAN IP connection clients the manager needs.
// internetgateway2 exposes several generations (WANIPConnection1/2,
// WANPPPConnection1) behind the same method set used here.
type client interface {
	AddPortMapping(newRemoteHost string, newExternalPort uint16, newProtocol string,
		newInternalPort uint16, newInternalClient string, newEnabled bool,
		newPortMappingDescription string, newLeaseDuration uint32) error
	DeletePortMapping(newRemoteHost string, newExternalPort uint16, newProtocol string) error
	GetExternalIPAddress() (string, error)
}

// Manager owns the current NAT/UPnP state and, once active, a renewal loop.
type Manager struct {
	port       int
	leaseSecs  int
	manualURL  string
	onRenew    RenewCallback
	discoverFn func() (client, string, error) // overridable in tests

	mu          sync.Mutex
	state       State
	externalURL string
	lastErr     string
	cli         client
	internalIP  string

	cancelRenew context.CancelFunc
}

// New returns a Manager for port, with the given lease TTL (0 = permanent)
// and optional manual override URL (non-empty forces StateManual until
// cleared with SetManualURL).
func New(port, leaseSecs int, manualURL string, onRenew RenewCallback) *Manager {
	return &Manager{
		port:       port,
		leaseSecs:  leaseSecs,
		manualURL:  manualURL,
		onRenew:    onRenew,
		discoverFn: discoverGateway,
	}
}

// SetManualURL overrides (or, passed "", clears) the manual external URL.
// Setting a non-empty URL forces StateManual immediately. Clearing it re-runs
// the UPnP mapping if a gateway client was discovered earlier (ending in
// StateActive or StateFailed), and enters StateIdle with no URL otherwise.
func (m *Manager) SetManualURL(ctx context.Context, url string) {
	m.mu.Lock()
	m.manualURL = url
	if url != "" {
		m.state = StateManual
		m.externalURL = url
		m.mu.Unlock()
		log.Printf("upnp: manual external url set: %s", url)
		return
	}
	hadMapping := m.cli != nil
	m.mu.Unlock()

	if hadMapping {
		m.mapAndActivate(ctx)
		return
	}
	m.mu.Lock()
	m.state = StateIdle
	m.externalURL = ""
	m.mu.Unlock()
}

// State returns the manager's current state and external URL (empty if none).
func (m *Manager) State() (State, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.externalURL, m.lastErr
}

// Start runs the startup algorithm: manual override, or attempt UPnP mapping.
func (m *Manager) Start(ctx context.Context) {
	if m.manualURL != "" {
		m.mu.Lock()
		m.state = StateManual
		m.externalURL = m.manualURL
		m.mu.Unlock()
		log.Printf("upnp: manual external url configured, skipping UPnP: %s", m.manualURL)
		return
	}
	m.mapAndActivate(ctx)
}

// RetryUpnp re-runs the mapping algorithm on port and returns the resulting state.
func (m *Manager) RetryUpnp(ctx context.Context, port int) State {
	m.mu.Lock()
	m.port = port
	m.mu.Unlock()
	m.mapAndActivate(ctx)
	state, _, _ := m.State()
	return state
}

func (m *Manager) mapAndActivate(ctx context.Context) {
	m.mu.Lock()
	m.state = StateMapping
	m.mu.Unlock()

	cli, internalIP, err := m.discoverFn()
	if err != nil {
		m.fail(fmt.Errorf("discover gateway: %w", err))
		return
	}

	_ = cli.DeletePortMapping("", uint16(m.port), "TCP")

	lease := uint32(m.leaseSecs)
	if err := cli.AddPortMapping("", uint16(m.port), "TCP", uint16(m.port), internalIP, true,
		description, lease); err != nil {
		m.fail(fmt.Errorf("add port mapping: %w", err))
		return
	}

	ip, err := cli.GetExternalIPAddress()
	if err != nil {
		m.fail(fmt.Errorf("query external ip: %w", err))
		return
	}

	m.mu.Lock()
	m.cli = cli
	m.internalIP = internalIP
	m.state = StateActive
	m.externalURL = fmt.Sprintf("http://%s:%d", ip, m.port)
	m.lastErr = ""
	if m.cancelRenew != nil {
		m.cancelRenew()
	}
	m.mu.Unlock()

	metrics.UpnpLeaseActive.Set(1)
	log.Printf("upnp: mapping active, external url %s", m.externalURL)

	if m.leaseSecs > 0 {
		renewCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.cancelRenew = cancel
		m.mu.Unlock()
		go m.renewLoop(renewCtx)
	}
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.state = StateFailed
	m.lastErr = err.Error()
	m.mu.Unlock()
	metrics.UpnpLeaseActive.Set(0)
	log.Printf("upnp: %v; continuing without federation reachability", err)
}

func (m *Manager) renewLoop(ctx context.Context) {
	interval := time.Duration(m.leaseSecs/3) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renewOnce()
		}
	}
}

func (m *Manager) renewOnce() {
	m.mu.Lock()
	cli := m.cli
	internalIP := m.internalIP
	prevURL := m.externalURL
	m.mu.Unlock()
	if cli == nil {
		return
	}

	lease := uint32(m.leaseSecs)
	if err := cli.AddPortMapping("", uint16(m.port), "TCP", uint16(m.port), internalIP, true,
		description, lease); err != nil {
		log.Printf("upnp: renew mapping failed, will retry next tick: %v", err)
		return
	}
	ip, err := cli.GetExternalIPAddress()
	if err != nil {
		log.Printf("upnp: renew external ip query failed, will retry next tick: %v", err)
		return
	}

	newURL := fmt.Sprintf("http://%s:%d", ip, m.port)
	m.mu.Lock()
	if m.state == StateManual {
		// The lease is kept alive, but a manual URL stays the published one.
		m.mu.Unlock()
		return
	}
	m.externalURL = newURL
	m.mu.Unlock()

	if newURL != prevURL && m.onRenew != nil {
		m.onRenew(newURL)
	}
}

// Stop removes the mapping (best-effort) and halts the renewal loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	cli := m.cli
	cancelRenew := m.cancelRenew
	port := m.port
	m.cancelRenew = nil
	m.mu.Unlock()

	if cancelRenew != nil {
		cancelRenew()
	}
	if cli != nil {
		_ = cli.DeletePortMapping("", uint16(port), "TCP")
	}
	metrics.UpnpLeaseActive.Set(0)
}

// discoverGateway locates a WAN IP connection service on the local network
// via internetgateway2, preferring WANIPConnection2 then falling back to
// older IGD generations some routers still advertise.
func discoverGateway() (client, string, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2Clients(); err == nil && len(clients) > 0 {
		localIP, err := localAddrFor(clients[0].Location)
		if err != nil {
			return nil, "", err
		}
		return clients[0], localIP, nil
	}
	if clients, _, err := internetgateway2.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		localIP, err := localAddrFor(clients[0].Location)
		if err != nil {
			return nil, "", err
		}
		return clients[0], localIP, nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		localIP, err := localAddrFor(clients[0].Location)
		if err != nil {
			return nil, "", err
		}
		return clients[0], localIP, nil
	}
	return nil, "", fmt.Errorf("no UPnP IGD WAN connection service found")
}

// localAddrFor dials the gateway's advertised location to learn which local
// interface address the OS would use to reach it, i.e. our internal IP for
// the port mapping's NewInternalClient argument.
func localAddrFor(gatewayURL *url.URL) (string, error) {
	conn, err := net.Dial("udp", gatewayURL.Host)
	if err != nil {
		return "", fmt.Errorf("determine local address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
