package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dd0wney/cluso-pubsub/pkg/api"
	"github.com/dd0wney/cluso-pubsub/pkg/auth"
	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/config"
	"github.com/dd0wney/cluso-pubsub/pkg/health"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
	"github.com/dd0wney/cluso-pubsub/pkg/server"
	"github.com/dd0wney/cluso-pubsub/pkg/timer"
	"github.com/dd0wney/cluso-pubsub/pkg/transport"
)

func main() {
	configPath := flag.String("config", "node.yaml", "Node configuration file")
	issueToken := flag.String("issue-token", "", "Print a bearer token for this subject and exit")
	hashKey := flag.String("hash-key", "", "Print the bcrypt hash of an API key for auth.api_keys and exit")
	flag.Parse()

	if *hashKey != "" {
		h, err := auth.HashKey(*hashKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		tokens, err := cfg.TokenManager()
		if err == nil {
			var token string
			if token, err = tokens.IssueToken(*issueToken); err == nil {
				fmt.Println(token)
				return
			}
		}
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Node.LogLevel))
	logging.SetDefaultLogger(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("node failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.File, configPath string, logger logging.Logger) error {
	reg := metrics.DefaultRegistry()
	reg.GetPrometheusRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	authenticator, err := cfg.Authenticator()
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	clusterCfg := cfg.ClusterConfig()
	self := cfg.Self()

	logger.Info("pubsub node starting",
		logging.NodeID(self.ID),
		logging.Count(len(cfg.Peers)),
		logging.String("backend", cfg.Transport.Backend))

	factory, err := transport.NewSocketFactory(cfg.Transport.Backend)
	if err != nil {
		return err
	}

	// One client per peer, shared with the replica pool.
	pool := transport.NewPool(factory, clusterCfg.RPCTimeout)
	peers := map[int]cluster.Peer{self.ID: nil}
	for _, p := range cfg.Others() {
		c, err := transport.NewClient(transport.ClientConfig{
			RPCAddress:    p.RPC,
			OneWayAddress: p.OneWay,
			Timeout:       clusterCfg.RPCTimeout,
		}, factory)
		if err != nil {
			pool.Close()
			return fmt.Errorf("peer %d: %w", p.ID, err)
		}
		pool.Register(c)
		peers[p.ID] = c
	}
	dir, err := cluster.NewPeerDirectory(self.ID, peers)
	if err != nil {
		pool.Close()
		return err
	}

	timers := timer.NewService()
	store := replica.NewStore(replica.Config{NodeID: self.ID, Address: cluster.Handle(self.RPC)}, pool, logger, reg)
	monitor := health.NewSlaveMonitor(cfg.MonitorConfig(), logger, reg)

	node, err := cluster.NewNode(clusterCfg, cluster.Dependencies{
		Peers:   dir,
		Replica: store,
		Health:  monitor,
		Timer:   timers,
		Logger:  logger,
		Metrics: reg,
	})
	if err != nil {
		pool.Close()
		timers.Stop()
		return err
	}
	store.Bind(node, monitor)

	mux := transport.NewMux()
	transport.RegisterNode(mux, node)
	transport.RegisterReplica(mux, store)
	rpc := transport.NewServer(transport.ServerConfig{
		RPCAddress:     self.RPC,
		OneWayAddress:  self.OneWay,
		Workers:        cfg.Transport.Workers,
		RequestTimeout: clusterCfg.RPCTimeout,
	}, factory, mux, logger, reg)
	if err := rpc.Start(); err != nil {
		pool.Close()
		timers.Stop()
		return fmt.Errorf("transport: %w", err)
	}

	hc := health.NewHealthChecker()
	hc.RegisterCheck("coordination", health.CoordinationCheck(node.Query))
	hc.RegisterCheck("slaves", health.SlavesCheck(monitor))
	hc.RegisterCheck("memory", health.MemoryCheck(health.RuntimeMemory))
	hc.RegisterReadinessCheck("coordination", health.CoordinationCheck(node.Query))
	hc.RegisterLivenessCheck("alive", health.AliveCheck())

	admin := api.NewServer(api.Config{
		Node:    node,
		Store:   store,
		Auth:    authenticator,
		Health:  hc,
		Metrics: reg,
		Logger:  logger,
	})
	gs := server.NewGracefulServer(cfg.Node.HTTPAddress, admin.Handler(), logger)
	gs.SetConfigReloadFunc(func() error {
		f, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(logging.ParseLevel(f.Node.LogLevel))
		return nil
	})

	// Order matters: stop coordinating before the sockets close under it.
	gs.OnShutdown("node", func(context.Context) error { node.Destroy(); return nil })
	gs.OnShutdown("monitor", func(context.Context) error { monitor.Stop(); return nil })
	gs.OnShutdown("transport", func(context.Context) error { return rpc.Stop() })
	gs.OnShutdown("peers", func(context.Context) error { return pool.Close() })
	gs.OnShutdown("replica", func(context.Context) error { store.Close(); return nil })
	gs.OnShutdown("timer", func(context.Context) error { timers.Stop(); return nil })

	go logReplicaEvents(store, logger, gs.ShutdownChannel())
	go updateSystemMetrics(reg, gs.ShutdownChannel())

	monitor.Start(node, node)
	node.Start()

	return gs.Start()
}

func logReplicaEvents(store *replica.Store, logger logging.Logger, done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	sub, err := store.Watch(ctx)
	if err != nil {
		return
	}
	for ev := range sub.Channel() {
		logger.Debug("replica updated",
			logging.String("op", string(ev.Update.Op)),
			logging.Topic(ev.Update.Topic),
			logging.String("origin", ev.Origin),
			logging.Generation(ev.LastLogUpdate.Generation),
			logging.Int64("iteration", ev.LastLogUpdate.Iteration))
	}
}

func updateSystemMetrics(reg *metrics.Registry, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			reg.UpdateSystemMetrics()
		}
	}
}
