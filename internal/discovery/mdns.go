// Package discovery advertises and finds tahta servers on the local network
// over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service name of a tahta server.
const ServiceType = "_tahta._tcp"

// Service is a discovered server.
type Service struct {
	Instance string
	Host     string
	Addr     string // host:port
	Info     []string
}

// WebSocketURL returns the realtime endpoint of s.
func (s Service) WebSocketURL() string {
	return "ws://" + s.Addr + "/ws"
}

// HTTPURL returns the REST base URL of s.
func (s Service) HTTPURL() string {
	return "http://" + s.Addr
}

// Advertiser keeps an mDNS responder running.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces instance on port. An empty instance uses the hostname.
func Advertise(instance string, port int, info ...string) (*Advertiser, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}
	if len(info) == 0 {
		info = []string{"tahta whiteboard"}
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Browse queries the network for servers until timeout or ctx is done.
func Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []Service
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		seen := make(map[string]bool)
		for e := range entries {
			s, ok := toService(e)
			if !ok || seen[s.Addr] {
				continue
			}
			seen[s.Addr] = true
			found = append(found, s)
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	<-collected
	if err != nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

func toService(e *mdns.ServiceEntry) (Service, bool) {
	if e == nil || e.Port == 0 {
		return Service{}, false
	}
	var ip net.IP
	switch {
	case e.AddrV4 != nil:
		ip = e.AddrV4
	case e.AddrV6 != nil:
		ip = e.AddrV6
	default:
		return Service{}, false
	}
	return Service{
		Instance: e.Name,
		Host:     e.Host,
		Addr:     net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)),
		Info:     e.InfoFields,
	}, true
}

// PortOf extracts the port of a listen address such as ":8080".
func PortOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}
