package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/opendmtp/dmtp-backend/internal/admin"
	"github.com/opendmtp/dmtp-backend/internal/config"
	"github.com/opendmtp/dmtp-backend/internal/listener"
	"github.com/opendmtp/dmtp-backend/internal/runtimeEnv"
	"github.com/opendmtp/dmtp-backend/internal/scheduler"
	"github.com/opendmtp/dmtp-backend/internal/session"
	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// bucketPruner is implemented by rate limiters that keep per-device
// buckets around indefinitely (sqlstore.RateLimiter); the memstore
// implementation has no such cost to bound and simply doesn't satisfy
// this, so the janitor job below skips it automatically.
type bucketPruner interface {
	Prune(activeKeys map[string]bool)
}

// sessionConfig translates config.Keys into the session and codec configs
// every accepted connection is built with.
func sessionConfig() (wire.Config, session.Config) {
	codecCfg := wire.DefaultConfig()
	codecCfg.MaxPayloadLen = int(config.Keys.Packet.Max.Len)

	sessCfg := session.Config{
		IdleTimeout:             time.Duration(config.Keys.Timeout.Idle.MS) * time.Millisecond,
		PacketTimeout:           time.Duration(config.Keys.Timeout.Packet.MS) * time.Millisecond,
		SessionTimeout:          time.Duration(config.Keys.Timeout.Session.MS) * time.Millisecond,
		Linger:                  time.Duration(config.Keys.Linger.Sec) * time.Second,
		DuplicateEventsNack:     config.Keys.Duplicate.Events.Nack,
		CustomTemplatesEnabled:  config.Keys.Template.Custom.Enabled,
		MaxBlockChecksumRetries: 1,
	}
	return codecCfg, sessCfg
}

// runServer wires component F (listeners) to component D (sessions) over
// the stores built by initBackend, starts the admin surface and the
// background scheduler, and blocks until SIGINT/SIGTERM, tearing
// everything down in reverse order. Structure mirrors the teacher's
// cmd/cc-backend/main.go: bind listeners, drop privileges, start serving,
// wait on a signal goroutine, then shut down gracefully.
func runServer(b *backend) error {
	registry := session.NewRegistry()
	deps := session.Deps{
		Accounts:  b.accounts,
		Devices:   b.devices,
		Events:    b.events,
		Limiter:   b.limiter,
		Templates: b.templates,
		Feed:      b.feed,
		LineTap:   b.lineTap,
		Archiver:  b.archiver,
		Registry:  registry,
	}
	codecCfg, sessCfg := sessionConfig()
	handle := session.Handle(codecCfg, sessCfg, deps)

	pool := listener.NewPool(listener.Config{
		MaxSessions: int(config.Keys.Pool.Max),
		Linger:      sessCfg.Linger,
	})

	tcpAddr := fmt.Sprintf(":%d", config.Keys.Listen.TCP.Port)
	tcpLn, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", tcpAddr, err)
	}

	udpAddr := fmt.Sprintf(":%d", config.Keys.Listen.UDP.Port)
	udpResolved, err := net.ResolveUDPAddr("udp", udpAddr)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("resolve udp addr %s: %w", udpAddr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpResolved)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("udp listen on %s: %w", udpAddr, err)
	}

	// Both privileged ports are bound before dropping root, same as the
	// teacher's single HTTP listener in cmd/cc-backend/main.go.
	if user := os.Getenv("DMTP_RUN_AS_USER"); user != "" {
		if err := runtimeEnv.DropPrivileges(user, os.Getenv("DMTP_RUN_AS_GROUP")); err != nil {
			tcpLn.Close()
			udpConn.Close()
			return fmt.Errorf("dropping privileges: %w", err)
		}
	}

	adminSrv := admin.New(config.Keys.Metrics.Addr, func() error { return nil })

	sched, err := scheduler.New()
	if err != nil {
		tcpLn.Close()
		udpConn.Close()
		return fmt.Errorf("scheduler: %w", err)
	}
	registerJobs(sched, b, registry)
	sched.Start()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.ServeTCP(tcpLn, handle)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.ServeUDP(udpConn, handle)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminSrv.Serve(); err != nil {
			log.Errorf("admin: %v", err)
		}
	}()

	wg.Add(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")

		tcpLn.Close()
		udpConn.Close()
		pool.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		adminSrv.Shutdown(ctx)

		sched.Shutdown()
		b.Close()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	wg.Wait()
	log.Info("dmtp-server: shutdown complete")
	return nil
}

// registerJobs wires component J's periodic maintenance: template-cache
// eviction, idle-session reaping, rate-bucket pruning (sqlstore only) and a
// stats heartbeat.
func registerJobs(sched *scheduler.Scheduler, b *backend, registry *session.Registry) {
	if err := sched.RegisterEvery("template-cache-prune", 5*time.Minute, func() {
		n := b.templates.CachePruneExpired()
		if n > 0 {
			log.Debugf("scheduler: evicted %d expired template cache entries", n)
		}
	}); err != nil {
		log.Warnf("scheduler: template-cache-prune: %v", err)
	}

	if err := sched.RegisterEvery("idle-session-reaper", time.Minute, func() {
		if n := registry.ReapExpired(5 * time.Second); n > 0 {
			log.Warnf("scheduler: idle-session-reaper force-closed %d wedged session(s)", n)
		}
	}); err != nil {
		log.Warnf("scheduler: idle-session-reaper: %v", err)
	}

	if p, ok := b.limiter.(bucketPruner); ok {
		if err := sched.RegisterEvery("rate-bucket-janitor", 10*time.Minute, func() {
			p.Prune(registry.Snapshot())
		}); err != nil {
			log.Warnf("scheduler: rate-bucket-janitor: %v", err)
		}
	}

	if err := sched.RegisterEvery("stats-heartbeat", time.Minute, func() {
		log.Infof("dmtp-server: %d active sessions", len(registry.Snapshot()))
	}); err != nil {
		log.Warnf("scheduler: stats-heartbeat: %v", err)
	}
}
