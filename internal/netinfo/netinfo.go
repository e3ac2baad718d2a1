// Package netinfo publishes hostname, bridge IPs, and per-interface
// link status (spec.md §4.6), polling net.Interfaces on a ticker in
// the teacher's poll-and-publish shape.
package netinfo

import (
	"context"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// LinkReader abstracts reading a single interface's speed/carrier state,
// which the standard library's net package does not expose directly —
// production backends read /sys/class/net/<if>/{speed,carrier}.
type LinkReader interface {
	Link(name string) (speedMbps int, carrier bool, err error)
}

// SysfsLinkReader reads speed/carrier from /sys/class/net, the usual
// Linux way to get this without a netlink client library (none of which
// is depended on anywhere in the example pack).
type SysfsLinkReader struct{}

func (SysfsLinkReader) Link(name string) (int, bool, error) {
	speed := readIntFile("/sys/class/net/" + name + "/speed")
	carrier := readIntFile("/sys/class/net/"+name+"/carrier") == 1
	return speed, carrier, nil
}

func readIntFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var v int
	for _, b := range data {
		if b < '0' || b > '9' {
			break
		}
		v = v*10 + int(b-'0')
	}
	return v
}

// HostnameSetter applies a requested hostname change. Production
// backends shell out to hostnamectl or write /etc/hostname; tests supply
// a fake that records the call.
type HostnameSetter interface {
	SetHostname(name string) error
}

// HostnamectlSetter applies a hostname change through hostnamectl, the
// standard systemd way of doing so without a D-Bus binding (none of
// which is depended on anywhere in the example pack).
type HostnamectlSetter struct{}

func (HostnamectlSetter) SetHostname(name string) error {
	return exec.Command("hostnamectl", "set-hostname", name).Run()
}

// Poller publishes a NetworkInfo snapshot on Period and, if Hostname is
// writable, applies incoming hostname writes through Setter.
type Poller struct {
	Links    LinkReader
	Setter   HostnameSetter
	Period   time.Duration
	Logger   *logrus.Logger

	Info     *topic.Topic[model.NetworkInfo]
	Hostname *topic.Topic[string]
}

func (p *Poller) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var sub *topic.Subscription
	if p.Hostname != nil && p.Setter != nil {
		sub = p.Hostname.Subscribe(func(_, _ uint64, name string) {
			// poll republishes the system's own hostname; only a
			// different name is a write to apply.
			if current, err := os.Hostname(); err == nil && current == name {
				return
			}
			if err := p.Setter.SetHostname(name); err != nil {
				logger.WithError(err).Error("netinfo: failed to set hostname")
			}
		})
		defer sub.Cancel()
	}

	ticker := time.NewTicker(p.Period)
	defer ticker.Stop()

	p.poll(logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(logger)
		}
	}
}

func (p *Poller) poll(logger *logrus.Logger) {
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.WithError(err).Warn("netinfo: failed to enumerate interfaces")
		return
	}

	info := model.NetworkInfo{
		Interfaces: make(map[string]model.InterfaceInfo, len(ifaces)),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err == nil {
			for _, a := range addrs {
				if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil && !ipNet.IP.IsLoopback() {
					info.BridgeIPs = append(info.BridgeIPs, ipNet.IP.String())
				}
			}
		}

		if p.Links != nil {
			speed, carrier, err := p.Links.Link(iface.Name)
			if err == nil {
				info.Interfaces[iface.Name] = model.InterfaceInfo{SpeedMbps: speed, Carrier: carrier}
			}
		}
	}

	if p.Info != nil {
		p.Info.Publish(info)
	}
	if p.Hostname != nil {
		p.Hostname.Publish(info.Hostname)
	}
}
