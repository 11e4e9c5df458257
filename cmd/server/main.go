// Command server boots a single cardmesh node: it loads node identity and
// peer list from the environment, connects to the shared Coordination
// Store, and starts the Transaction Engine, recovery sweeper, latency
// probe and RPC Mesh HTTP listener together.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mnohosten/cardmesh/internal/config"
	"github.com/mnohosten/cardmesh/internal/eventbus"
	"github.com/mnohosten/cardmesh/internal/metrics"
	"github.com/mnohosten/cardmesh/internal/probe"
	"github.com/mnohosten/cardmesh/internal/rpcmesh"
	"github.com/mnohosten/cardmesh/internal/store"
	"github.com/mnohosten/cardmesh/internal/txn"
)

const sweepInterval = 10 * time.Second

func main() {
	host := flag.String("host", "0.0.0.0", "HTTP/UDP bind address")
	enableGraphQL := flag.Bool("graphql", false, "Enable the read-only GraphQL endpoint (/graphql)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("server: config: %v", err)
	}
	if *enableGraphQL {
		cfg.EnableGraphQL = true
	}

	st := store.New(cfg.RedisAddr())
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("server: coordination store unreachable at %s: %v", cfg.RedisAddr(), err)
	}
	if err := st.EnsureStockInitialized(ctx); err != nil {
		cancel()
		log.Fatalf("server: ensure stock initialized: %v", err)
	}
	cancel()

	collector := metrics.NewMetricsCollector()
	tracker := metrics.NewResourceTracker(metrics.DefaultResourceTrackerConfig())
	defer tracker.Close()
	st.SetResourceTracker(tracker)
	exporter := metrics.NewPrometheusExporter(collector, tracker)

	bus := eventbus.New(st)

	engine := txn.NewEngine(cfg.SelfURL(), cfg.Peers, st, bus, collector)

	sweeper := txn.NewSweeper(engine, sweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	prober, err := probe.New(*host, cfg.Port)
	if err != nil {
		log.Fatalf("server: latency probe: %v", err)
	}
	if err := prober.Start(); err != nil {
		log.Fatalf("server: latency probe start: %v", err)
	}
	defer prober.Stop()

	meshConfig := rpcmesh.DefaultConfig()
	meshConfig.Host = *host
	meshConfig.Port = cfg.Port
	meshConfig.MaxRequestSize = cfg.MaxRequestSize
	meshConfig.EnableGraphQL = cfg.EnableGraphQL

	srv, err := rpcmesh.New(meshConfig, cfg.NodeName, engine, st, bus, exporter)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	log.Printf("server: %s joining mesh %v", cfg.NodeName, cfg.Peers)
	if err := srv.Start(); err != nil {
		log.Fatalf("server: %v", fmt.Errorf("rpc mesh: %w", err))
	}
}
