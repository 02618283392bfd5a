// Command hbp4 runs the HBP relay: it loads configuration, wires the
// access-control matcher, stream engine, event emitter, peer registry,
// outbound client sessions, and the inbound UDP listener together, then
// serves until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hbp4/hbp4/pkg/config"
	"github.com/hbp4/hbp4/pkg/counters"
	"github.com/hbp4/hbp4/pkg/events"
	"github.com/hbp4/hbp4/pkg/logger"
	"github.com/hbp4/hbp4/pkg/matcher"
	"github.com/hbp4/hbp4/pkg/metrics"
	"github.com/hbp4/hbp4/pkg/network"
	"github.com/hbp4/hbp4/pkg/outbound"
	"github.com/hbp4/hbp4/pkg/peer"
	"github.com/hbp4/hbp4/pkg/protocol"
	"github.com/hbp4/hbp4/pkg/scheduler"
	"github.com/hbp4/hbp4/pkg/stream"
	"github.com/hbp4/hbp4/pkg/userdir"
)

// Exit codes per the configuration-error / bind-failure split documented
// for the relay's startup behavior.
const (
	exitConfigError = 1
	exitBindError   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hbp4: %v\n", err)
		return exitConfigError
	}

	log := logger.New(logger.Config{Level: cfg.Global.LogLevel, Format: "text"})
	log.Info("configuration loaded", logger.String("bind", fmt.Sprintf("%s:%d", cfg.Global.BindIPv4, cfg.Global.BindPort)))

	var dir matcher.Directory = matcher.NopDirectory{}
	var dirStore *userdir.Store
	if cfg.UserDirectory.Enabled {
		dirStore, err = userdir.Open(cfg.UserDirectory.DBPath, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hbp4: open user directory: %v\n", err)
			return exitConfigError
		}
		defer dirStore.Close()
		dir = dirStore

		if cfg.UserDirectory.CSVPath != "" {
			entries, err := userdir.LoadCSV(cfg.UserDirectory.CSVPath)
			if err != nil {
				log.Warn("failed to load user directory CSV, continuing with existing cache", logger.Error(err))
			} else if err := dirStore.Sync(entries, 1000); err != nil {
				log.Warn("failed to sync user directory CSV", logger.Error(err))
			} else {
				log.Info("user directory synced", logger.Int("entries", len(entries)))
			}
		}
	}

	m, err := config.BuildMatcher(cfg, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hbp4: %v\n", err)
		return exitConfigError
	}

	countersStore, err := counters.Load(cfg.Global.CountersFile, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "hbp4: %v\n", err)
		return exitConfigError
	}

	var collector *metrics.Collector
	var promServer *metrics.PrometheusServer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		collector = metrics.NewCollector(registry)
		promServer = metrics.NewPrometheusServer(metrics.PrometheusConfig{
			Enabled: cfg.Metrics.Enabled,
			Port:    cfg.Metrics.Port,
			Path:    cfg.Metrics.Path,
		}, registry, log)
	}

	stateProvider := network.NewStateProvider()
	var sink stream.EventSink = noopSink{}
	var emitter *events.Emitter
	if cfg.EventEmitter.Enabled {
		emitter, err = events.New(config.BuildEventsConfig(cfg), stateProvider, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hbp4: start event emitter: %v\n", err)
			return exitConfigError
		}
		defer emitter.Close()
		sink = emitter
	}
	sink = countersStore.Tee(sink)

	peers := peer.NewManager()

	outboundCfgs := config.BuildOutboundConfigs(cfg)
	outboundSessions := make([]*outbound.Session, 0, len(outboundCfgs))
	for _, oc := range outboundCfgs {
		o := outbound.New(oc, log)
		o.SetSink(sink)
		outboundSessions = append(outboundSessions, o)
	}

	roster := network.NewRoster(peers, outboundSessions)
	var streamMetrics stream.Metrics
	if collector != nil {
		streamMetrics = collector
	}
	engine := stream.New(roster, config.BuildStreamConfig(cfg), sink, streamMetrics)

	stateProvider.Attach(peers, outboundSessions, engine)

	for _, o := range outboundSessions {
		o.OnDMRD(outboundDMRDHandler(engine, o))
	}

	detector := config.BuildPackageDetector(cfg)

	srv := network.New(network.Config{
		BindAddr: cfg.Global.BindIPv4,
		BindPort: cfg.Global.BindPort,
	}, peers, m, engine, detector, sink, collector, countersStore, log)

	sched := scheduler.New(config.BuildSchedulerConfig(cfg), peers, engine, outboundSessions, sink, countersStore, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	go sched.Run(ctx)
	if promServer != nil {
		go func() {
			if err := promServer.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
	}

	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "hbp4: %v\n", err)
		return exitBindError
	}

	log.Info("shutdown complete")
	return 0
}

// outboundDMRDHandler admits and forwards DMRD frames arriving from an
// upstream master through the same stream engine inbound peers use, so an
// outbound connection behaves identically to any other routing target.
func outboundDMRDHandler(engine *stream.Engine, o *outbound.Session) func(*protocol.DMRDPacket, []byte) {
	return func(pkt *protocol.DMRDPacket, raw []byte) {
		now := time.Now()
		st, ok := engine.Admit(o.ID(), pkt.Timeslot, pkt.SourceID, pkt.DestinationID, pkt.StreamID, pkt.CallType, pkt.BER, pkt.RSSI, now)
		if !ok {
			return
		}
		engine.Forward(st, raw, pkt.BER, pkt.RSSI, now)
		if pkt.FrameType == protocol.FrameTypeVoiceTerminator && pkt.DataType == 2 {
			engine.Terminate(o.ID(), pkt.Timeslot, now)
		}
	}
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}
