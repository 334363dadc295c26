// cmd/node is the entrypoint for a single node in the hierarchical
// key-value store. A node's role — core peer, core origin, tier-1/2
// primary, or tier-1/2 backup — is entirely determined by its flags, so
// one binary serves every position in the deployment.
//
// Example — three-node core with A1 as origin, forwarding to B1:
//
//	./node --id A1 --tier 0 --addr :8081 --data-dir /tmp/kv/A1 \
//	       --peers A2=localhost:8082,A3=localhost:8083 \
//	       --origin --downstream localhost:9081
//	./node --id A2 --tier 0 --addr :8082 --data-dir /tmp/kv/A2 \
//	       --peers A1=localhost:8081,A3=localhost:8083
//
// Example — tier-1 primary forwarding to a tier-2 primary:
//
//	./node --id B1 --tier 1 --addr :9081 --data-dir /tmp/kv/B1 \
//	       --primary --backups B2=localhost:9082 --upstream2 localhost:9091
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hierarchical-kvstore/internal/api"
	"hierarchical-kvstore/internal/node"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	defaults := node.DefaultConfig()

	nodeID := flag.String("id", "node1", "unique node identifier")
	tier := flag.Int("tier", defaults.Tier, "this node's tier: 0 (core), 1, or 2")
	addr := flag.String("addr", defaults.Addr, "listen address (host:port)")
	dataDir := flag.String("data-dir", defaults.DataDir, "directory for the version log")
	peersFlag := flag.String("peers", "", "core only: comma-separated id=host:port core peer list")
	origin := flag.Bool("origin", false, "core only: marks this core peer as the designated origin")
	downstream := flag.String("downstream", "", "core origin only: tier-1 primary address")
	primary := flag.Bool("primary", false, "tier 1/2 only: marks this node as the tier's primary")
	backupsFlag := flag.String("backups", "", "tier 1/2 primary only: comma-separated id=host:port backup list")
	upstream2 := flag.String("upstream2", "", "tier-1 primary only: tier-2 primary address")
	countThreshold := flag.Int("count-threshold", defaults.CountThreshold, "writes between count-triggered syncs")
	syncInterval := flag.Duration("sync-interval", defaults.SyncInterval, "tier-1→tier-2 tick interval")
	fanoutTimeout := flag.Duration("fanout-timeout", defaults.FanoutTimeout, "timeout for a single peer/backup RPC")
	gracePeriod := flag.Duration("grace-period", defaults.GracePeriod, "graceful shutdown grace period")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := node.Config{
		NodeID:         *nodeID,
		Tier:           *tier,
		Addr:           *addr,
		DataDir:        *dataDir,
		CorePeers:      parsePeerList(*peersFlag),
		Origin:         *origin,
		Downstream:     withScheme(*downstream),
		Primary:        *primary,
		Backups:        parsePeerList(*backupsFlag),
		Upstream2:      withScheme(*upstream2),
		CountThreshold: *countThreshold,
		SyncInterval:   *syncInterval,
		FanoutTimeout:  *fanoutTimeout,
		GracePeriod:    *gracePeriod,
	}

	n, err := node.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to construct node")
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.WithError(err).Error("error closing node")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	entry := n.Logger()
	router.Use(api.Logger(entry), api.Recovery(entry))
	api.NewHandler(n).Register(router)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		entry.WithField("addr", cfg.Addr).Info("node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	entry.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Error("server shutdown error")
	}
}

// parsePeerList parses "id=host:port,id=host:port" into PeerSpecs,
// skipping the empty string (the common case of "no peers configured").
func parsePeerList(raw string) []node.PeerSpec {
	if raw == "" {
		return nil
	}
	var specs []node.PeerSpec
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		specs = append(specs, node.PeerSpec{ID: parts[0], Addr: withScheme(parts[1])})
	}
	return specs
}

// withScheme adds an "http://" prefix to bare host:port addresses so
// callers can pass either form on the command line.
func withScheme(addr string) string {
	if addr == "" || strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}
