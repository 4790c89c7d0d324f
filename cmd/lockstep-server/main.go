package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/majg0/lockstep/pkg/lglog"
	"github.com/majg0/lockstep/pkg/lockstepcfg"
	"github.com/majg0/lockstep/pkg/lstiming"
	"github.com/majg0/lockstep/pkg/message"
	"github.com/majg0/lockstep/pkg/netmetrics"
	"github.com/majg0/lockstep/pkg/netsrv"
	"github.com/majg0/lockstep/pkg/sockettune"
)

const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	listenAddr := flag.String("listen", "", "override listen_addr from config")
	flag.Parse()

	cfg, err := lockstepcfg.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	log := lglog.New("lockstep-server", cfg.LogLevel)
	log.WithField("version", Version).Info("starting lockstep server")

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		log.WithError(err).Fatal("invalid listen address")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.WithError(err).Fatal("failed to bind socket")
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(4 * 1024 * 1024); err != nil {
		log.WithError(err).Warn("SetReadBuffer failed")
	}
	if err := sockettune.Buffers(conn, 4*1024*1024); err != nil {
		log.WithError(err).Warn("raw socket buffer tuning failed")
	}

	srv := netsrv.New(conn, cfg.MaxClients, log)

	collector := netmetrics.NewEndpointCollector("lockstep", []string{"slot"}, nil)
	prometheus.MustRegister(collector)
	go serveMetrics(cfg.MetricsAddr, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runLoop(srv, cfg, collector, log, done)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Warn("shutting down")
	close(done)
	time.Sleep(100 * time.Millisecond)
	log.Info("server stopped")
}

func serveMetrics(addr string, log *logrus.Entry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}

// runLoop drives the receive/dispatch/send cycle at cfg.NetworkFPS,
// registering and retiring each connected slot with collector as clients
// join and time out.
func runLoop(srv *netsrv.Server, cfg lockstepcfg.Server, collector *netmetrics.EndpointCollector, log *logrus.Entry, done chan struct{}) {
	acc := lstiming.NewFrameAccumulator(cfg.NetworkFPS)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			for n := acc.Advance(elapsed); n > 0; n-- {
				stepOnce(srv, collector, log)
			}
		}
	}
}

func stepOnce(srv *netsrv.Server, collector *netmetrics.EndpointCollector, log *logrus.Entry) {
	for {
		ev := srv.ReceiveOne()
		if ev == nil {
			break
		}
		switch ev.Kind {
		case netsrv.EventClientConnected:
			slot := fmt.Sprintf("%d", ev.Slot)
			collector.Add(slot, srv.Endpoint(ev.Slot), []string{slot})
		case netsrv.EventClientTimeout:
			collector.Remove(fmt.Sprintf("%d", ev.Slot))
		}
	}

	for i := 0; i < srv.Capacity(); i++ {
		for {
			msg, ok := netsrv.ReadNew[message.Input](srv, i)
			if !ok {
				break
			}
			handleInput(srv, i, msg, log)
		}
	}

	if ev := srv.Tick(); ev != nil && ev.Kind == netsrv.EventClientTimeout {
		collector.Remove(fmt.Sprintf("%d", ev.Slot))
	}
}

// handleInput is the application hook: it echoes chat messages back to
// every peer and returns pings to their sender, standing in for real game
// logic.
func handleInput(srv *netsrv.Server, slot int, msg message.Input, log *logrus.Entry) {
	switch {
	case msg.Chat != nil:
		log.WithField("slot", slot).WithField("text", msg.Chat.Text).Info("chat")
		srv.Broadcast(&msg)
	case msg.Ping != nil:
		srv.Write(slot, &msg)
	}
}
