// Package probe implements the Latency Probe: a UDP echo endpoint bound to
// the same port number as the node's HTTP listener. Clients send
// PING:<timestamp> and time the round trip to rank regions; the probe is
// deliberately lossy and stateless, with no retransmission or sequencing.
//
// The Start/Stop lifecycle mirrors the gRPC server's
// goroutine-plus-shutdown-channel pattern used elsewhere in this codebase
// for long-running network listeners.
package probe

import (
	"fmt"
	"net"
	"sync"
)

// Prober is a UDP echo listener.
type Prober struct {
	addr *net.UDPAddr

	mu       sync.RWMutex
	conn     *net.UDPConn
	started  bool
	shutdown chan struct{}
	done     chan struct{}
}

// New creates a Prober bound to host:port (typically the same port as the
// HTTP listener).
func New(host string, port int) (*Prober, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	return &Prober{
		addr:     addr,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins listening and echoing datagrams in a background goroutine.
func (p *Prober) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("prober already started")
	}

	conn, err := net.ListenUDP("udp", p.addr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	p.conn = conn
	p.started = true

	go p.serve(conn)

	return nil
}

func (p *Prober) serve(conn *net.UDPConn) {
	defer close(p.done)

	buf := make([]byte, 1500)
	for {
		select {
		case <-p.shutdown:
			return
		default:
		}

		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-p.shutdown:
				return
			default:
				continue
			}
		}

		// Echo verbatim; a failed write is dropped silently, the probe is
		// lossy by design and clients are expected to time out.
		_, _ = conn.WriteToUDP(buf[:n], src)
	}
}

// Stop closes the listener and waits for the serve goroutine to exit.
func (p *Prober) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	close(p.shutdown)
	err := p.conn.Close()
	<-p.done
	p.started = false
	return err
}
