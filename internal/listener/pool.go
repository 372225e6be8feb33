package listener

import (
	"net"
	"sync"
	"time"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// Handler processes one ClientSocket end to end. It owns the socket and
// must Close it before returning.
type Handler func(sock ClientSocket)

// Config bounds the pool (spec.md §6: pool.max, linger.sec) and the UDP
// per-source demultiplexer.
type Config struct {
	// MaxSessions bounds concurrently running handlers. A connection
	// accepted past this limit is closed immediately without being
	// handed to a Handler (spec.md §4.F: "a full pool rejects new
	// connections rather than queuing them unboundedly").
	MaxSessions int

	// Linger is applied to TCP sockets before Close, letting a final
	// write flush to a slow peer instead of resetting the connection.
	Linger time.Duration
}

// Pool accepts connections/datagrams on a listener and runs Handler for
// each, bounded to cfg.MaxSessions concurrent handlers.
type Pool struct {
	cfg     Config
	sem     chan struct{}
	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

// NewPool creates a pool bounded by cfg.
func NewPool(cfg Config) *Pool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	return &Pool{cfg: cfg, sem: make(chan struct{}, cfg.MaxSessions), closing: make(chan struct{})}
}

// ServeTCP accepts connections on ln until the pool is shut down, running
// handle for each on its own goroutine.
func (p *Pool) ServeTCP(ln net.Listener, handle Handler) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-p.closing:
				return
			default:
				log.Warnf("listener: tcp accept: %v", err)
				continue
			}
		}

		select {
		case p.sem <- struct{}{}:
		default:
			log.Warnf("listener: pool full, rejecting %s", conn.RemoteAddr())
			conn.Close()
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok && p.cfg.Linger > 0 {
			tc.SetLinger(int(p.cfg.Linger.Seconds()))
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			handle(NewTCPSocket(conn))
		}()
	}
}

// ServeUDP reads datagrams from conn until the pool is shut down. Each
// datagram is its own session (spec.md §3: "a UDP Session is a single
// datagram exchange"): it gets its own udpSocket, own handle invocation,
// and own goroutine, with no demultiplexing or buffering across
// datagrams from the same source address.
func (p *Pool) ServeUDP(conn *net.UDPConn, handle Handler) {
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-p.closing:
				return
			default:
				log.Warnf("listener: udp read: %v", err)
				continue
			}
		}

		dgram := make([]byte, n)
		copy(dgram, buf[:n])

		select {
		case p.sem <- struct{}{}:
		default:
			log.Warnf("listener: pool full, dropping datagram from %s", addr)
			continue
		}

		sock := newUDPSocket(conn, addr, dgram)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			handle(sock)
		}()
	}
}

// Shutdown signals both accept loops to stop taking new work and waits
// for in-flight handlers to return.
func (p *Pool) Shutdown() {
	p.once.Do(func() { close(p.closing) })
	p.wg.Wait()
}
