// Package tailnet reports the local node's Tailscale state through the
// tailscaled LocalAPI.
package tailnet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tailscale.com/client/local"
	"tailscale.com/ipn/ipnstate"
)

// DefaultInterval is how often tailnet status is polled.
const DefaultInterval = 30 * time.Second

// StatusClient abstracts the LocalAPI. *local.Client satisfies it.
type StatusClient interface {
	Status(ctx context.Context) (*ipnstate.Status, error)
}

// Peer is a compact view of one peer.
type Peer struct {
	Hostname string    `json:"hostname"`
	IP       string    `json:"ip,omitempty"`
	OS       string    `json:"os,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
}

// Status is what the tailnet widget shows.
type Status struct {
	BackendState string `json:"backend_state"`
	Hostname     string `json:"hostname"`
	IP           string `json:"ip,omitempty"`
	TailnetName  string `json:"tailnet_name,omitempty"`
	OnlinePeers  int    `json:"online_peers"`
	TotalPeers   int    `json:"total_peers"`
	ExitNode     string `json:"exit_node,omitempty"`
	Peers        []Peer `json:"peers,omitempty"`
}

// Placeholder is shown before the first successful poll.
func Placeholder() Status {
	return Status{BackendState: "Unknown"}
}

// Running reports whether tailscaled is connected.
func (s Status) Running() bool {
	return s.BackendState == "Running"
}

// Summary renders "3/5 peers" or the backend state when not running.
func (s Status) Summary() string {
	if !s.Running() {
		return s.BackendState
	}
	sum := fmt.Sprintf("%d/%d peers", s.OnlinePeers, s.TotalPeers)
	if s.ExitNode != "" {
		sum += " via " + s.ExitNode
	}
	return sum
}

// Source polls tailscaled.
type Source struct {
	client StatusClient
}

// NewSource wraps client.
func NewSource(client StatusClient) *Source {
	return &Source{client: client}
}

// NewLocalSource connects to tailscaled over socketPath, or the platform
// default when empty. The LocalAPI client is built on first use.
func NewLocalSource(socketPath string) *Source {
	return NewSource(&lazyClient{socketPath: socketPath})
}

// Fetch returns the mapped status.
func (s *Source) Fetch(ctx context.Context) (Status, error) {
	st, err := s.client.Status(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("tailscale status: %w", err)
	}
	if st == nil {
		return Status{}, fmt.Errorf("tailscale status: nil response")
	}
	return mapStatus(st), nil
}

func mapStatus(st *ipnstate.Status) Status {
	out := Status{BackendState: st.BackendState}
	if st.CurrentTailnet != nil {
		out.TailnetName = st.CurrentTailnet.Name
	}
	if st.Self != nil {
		out.Hostname = st.Self.HostName
	}
	if len(st.TailscaleIPs) > 0 {
		// IPv4 sorts first in tailscaled's list.
		out.IP = st.TailscaleIPs[0].String()
	}

	for _, k := range st.Peers() {
		ps := st.Peer[k]
		if ps == nil {
			continue
		}
		p := mapPeer(ps)
		out.Peers = append(out.Peers, p)
		if p.Online {
			out.OnlinePeers++
		}
		if ps.ExitNode {
			out.ExitNode = p.Hostname
		}
	}
	out.TotalPeers = len(out.Peers)

	sort.SliceStable(out.Peers, func(i, j int) bool {
		if out.Peers[i].Online != out.Peers[j].Online {
			return out.Peers[i].Online
		}
		return strings.ToLower(out.Peers[i].Hostname) < strings.ToLower(out.Peers[j].Hostname)
	})
	return out
}

func mapPeer(ps *ipnstate.PeerStatus) Peer {
	p := Peer{
		Hostname: ps.HostName,
		OS:       ps.OS,
		Online:   ps.Online,
		LastSeen: ps.LastSeen,
	}
	if len(ps.TailscaleIPs) > 0 {
		p.IP = ps.TailscaleIPs[0].String()
	}
	if ps.Tags != nil && !ps.Tags.IsNil() {
		p.Tags = make([]string, ps.Tags.Len())
		for i := range ps.Tags.Len() {
			p.Tags[i] = ps.Tags.At(i)
		}
	}
	return p
}

// lazyClient defers building the LocalAPI client until the first call so
// constructing a Source never touches the socket.
type lazyClient struct {
	socketPath string
	once       sync.Once
	client     *local.Client
}

func (c *lazyClient) Status(ctx context.Context) (*ipnstate.Status, error) {
	c.once.Do(func() {
		c.client = &local.Client{}
		if c.socketPath != "" {
			c.client.Socket = c.socketPath
		}
	})
	return c.client.Status(ctx)
}
