// Package discovery advertises canvas servers over mDNS and finds them.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/vango-dev/textcanvas/pkg/protocol"
)

// Service is the DNS-SD service type of a canvas server.
const Service = "_textcanvas._tcp"

// Domain is the mDNS browse domain.
const Domain = "local."

// Peer is a canvas server found on the network.
type Peer struct {
	Instance string
	Host     string
	Addrs    []net.IP
	Port     int
	Path     string
}

// URL returns the WebSocket URL of the peer, preferring IPv4.
func (p Peer) URL() string {
	host := p.Host
	if len(p.Addrs) > 0 {
		host = p.Addrs[0].String()
	}
	host = strings.TrimSuffix(host, ".")
	path := p.Path
	if path == "" {
		path = protocol.Path
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(p.Port)) + path
}

// Registration is a live mDNS advertisement.
type Registration struct {
	server *zeroconf.Server
}

// Shutdown withdraws the advertisement.
func (r *Registration) Shutdown() {
	if r != nil && r.server != nil {
		r.server.Shutdown()
	}
}

// Register advertises a canvas server on port under instance.
func Register(instance string, port int) (*Registration, error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %s: %w", instance, err)
	}
	return &Registration{server: server}, nil
}

// TXT returns the TXT records published with every registration.
func TXT() []string {
	return []string{"txtv=1", "path=" + protocol.Path}
}

// Browse collects the peers answering until ctx is done. Peers are sorted
// by instance name.
func Browse(ctx context.Context) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Peer, 1)
	go func() {
		seen := make(map[string]Peer)
	collect:
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					break collect
				}
				p := peerFromEntry(entry)
				seen[p.Instance] = p
			case <-ctx.Done():
				break collect
			}
		}
		peers := make([]Peer, 0, len(seen))
		for _, p := range seen {
			peers = append(peers, p)
		}
		sort.Slice(peers, func(i, j int) bool { return peers[i].Instance < peers[j].Instance })
		done <- peers
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-ctx.Done()
	return <-done, nil
}

func peerFromEntry(e *zeroconf.ServiceEntry) Peer {
	p := Peer{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
	}
	p.Addrs = append(p.Addrs, e.AddrIPv4...)
	p.Addrs = append(p.Addrs, e.AddrIPv6...)
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok {
			p.Path = v
		}
	}
	return p
}
