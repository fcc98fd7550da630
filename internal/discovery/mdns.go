// ABOUTME: mDNS discovery for the playback control service
// ABOUTME: Advertises the control server on the local network and browses for peers
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service type advertised by engine daemons.
const ServiceType = "_playback-ctl._tcp"

// browseTimeout bounds one browse query round.
const browseTimeout = 3 * time.Second

// Config holds discovery configuration.
type Config struct {
	InstanceName string
	Port         int
}

// Manager handles mDNS advertisement and browsing.
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	engines chan *EngineInfo
}

// EngineInfo describes a discovered engine daemon.
type EngineInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		engines: make(chan *EngineInfo, 10),
	}
}

// Advertise publishes this daemon's control endpoint via mDNS. The
// advertisement stays up until Stop.
func (m *Manager) Advertise() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.InstanceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/control"},
	)
	if err != nil {
		return fmt.Errorf("failed to create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"instance": m.config.InstanceName,
		"port":     m.config.Port,
		"type":     ServiceType,
	}).Info("mDNS advertisement started")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches the local network for engine daemons, delivering
// results on the Engines channel until Stop.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				info := &EngineInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				logrus.WithFields(logrus.Fields{
					"name": info.Name,
					"host": info.Host,
					"port": info.Port,
				}).Info("Discovered engine daemon")

				select {
				case m.engines <- info:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		mdns.Query(m.queryParams(entries))
		close(entries)
	}
}

// queryParams builds one browse round's query. Timeout is a duration,
// not a count of seconds.
func (m *Manager) queryParams(entries chan *mdns.ServiceEntry) *mdns.QueryParam {
	return &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: browseTimeout,
		Entries: entries,
	}
}

// Engines returns the channel of discovered daemons.
func (m *Manager) Engines() <-chan *EngineInfo {
	return m.engines
}

// Stop tears down advertisement and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
