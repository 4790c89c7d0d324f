package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/majg0/lockstep/pkg/lglog"
	"github.com/majg0/lockstep/pkg/lockstepcfg"
	"github.com/majg0/lockstep/pkg/lstiming"
	"github.com/majg0/lockstep/pkg/message"
	"github.com/majg0/lockstep/pkg/netcli"
	"github.com/majg0/lockstep/pkg/sockettune"
)

const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	serverAddr := flag.String("server", "", "override server_addr from config")
	flag.Parse()

	cfg, err := lockstepcfg.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}

	log := lglog.New("lockstep-client", cfg.LogLevel)
	log.WithField("version", Version).Info("starting lockstep client")

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		log.WithError(err).Fatal("invalid server address")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		log.WithError(err).Fatal("failed to open socket")
	}
	defer conn.Close()
	if err := sockettune.Buffers(conn, 4*1024*1024); err != nil {
		log.WithError(err).Warn("socket buffer tuning failed")
	}

	cli := netcli.New(conn, udpAddr, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runLoop(cli, cfg, log, done)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Warn("shutting down")
	close(done)
	log.Info("client stopped")
}

func runLoop(cli *netcli.Client, cfg lockstepcfg.Client, log *logrus.Entry, done chan struct{}) {
	acc := lstiming.NewFrameAccumulator(cfg.NetworkFPS)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()
	var nonce uint32

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			for n := acc.Advance(elapsed); n > 0; n-- {
				if ev := cli.ReceiveOne(); ev != nil && *ev == netcli.EventConnected {
					log.WithField("index", cli.Index).Info("handshake complete")
				}

				if cli.State == netcli.StateConnected {
					for {
						msg, ok := netcli.ReadNew[message.Input](cli)
						if !ok {
							break
						}
						if msg.Chat != nil {
							log.WithField("text", msg.Chat.Text).Info("chat received")
						}
					}

					nonce++
					cli.Write(&message.Input{Ping: &message.Ping{Nonce: nonce}})
				}

				if ev := cli.Tick(); ev != nil && *ev == netcli.EventConnectionTimeout {
					log.Warn("connection timed out, retrying handshake")
				}
			}
		}
	}
}
