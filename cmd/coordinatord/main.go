// Command coordinatord runs the ingestion and placement control
// plane: it refreshes each table's spec set from the cluster
// configuration store, assigns unplaced specs to workers, expires
// specs that have aged out, and evicts nodes the poller finds
// unreachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/blockmeshdb/coordinator/cluster"
	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/ingest"
	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
	"github.com/blockmeshdb/coordinator/storage"
)

// Config holds coordinatord's runtime settings, populated from flags
// and COORDINATOR_-prefixed environment variables via viper. No config
// file is read.
type Config struct {
	EtcdEndpoints []string      `mapstructure:"etcd-endpoints"`
	StorageURL    string        `mapstructure:"storage-url"`
	TempDir       string        `mapstructure:"temp-dir"`
	RefreshEvery  time.Duration `mapstructure:"refresh-interval"`
	AssignEvery   time.Duration `mapstructure:"assign-interval"`
	ExpireEvery   time.Duration `mapstructure:"expire-interval"`
	PollEvery     time.Duration `mapstructure:"poll-interval"`
	Verbose       bool          `mapstructure:"verbose"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("COORDINATOR")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "coordinatord",
		Short: "Run the ingestion and placement control plane.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("parsing config: %w", err)
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints backing the cluster config store")
	flags.String("storage-url", "file:///var/lib/workerd/data", "gocloud.dev blob URL specs are generated against, for size/mtime signature hints")
	flags.String("temp-dir", os.TempDir(), "scratch directory for temporary files")
	flags.Duration("refresh-interval", 30*time.Second, "how often to regenerate specs from table configuration")
	flags.Duration("assign-interval", 5*time.Second, "how often to place unassigned specs and send ingestion tasks")
	flags.Duration("expire-interval", 60*time.Second, "how often to expire specs that have aged out")
	flags.Duration("poll-interval", 10*time.Second, "how often to check node liveness")
	flags.Bool("verbose", false, "enable debug logging")
	_ = v.BindPFlags(flags)

	return cmd
}

func run(cfg Config) error {
	log := logger.NewStandardLogger(os.Stderr)
	if cfg.Verbose {
		log = logger.NewVerboseLogger(os.Stderr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs, err := storage.Open(ctx, cfg.StorageURL, cfg.TempDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer fs.Close()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to etcd: %w", err)
	}
	defer etcdClient.Close()

	clusterInfo := cluster.NewEtcdInfo(etcdClient, log)
	manager := execution.NewManager()
	repo := ingest.NewRepo(ingest.RepoConfig{
		Cluster: clusterInfo,
		Manager: manager,
		Logger:  log,
		FS:      fs,
	})

	makeClient := func(addr meta.Address) node.Client { return node.NewHTTPClient(addr) }

	poller := node.New(node.Config{
		Addresses: clusterAddressLister{clusterInfo},
		Reporter:  repoLostReporter{repo},
		Prober:    echoProber{makeClient},
		Interval:  cfg.PollEvery,
		Logger:    log,
	})
	go poller.Run()
	defer poller.Stop()

	go runLoop(ctx, cfg.RefreshEvery, log, "refresh", func() error {
		n, err := repo.Refresh(ctx)
		log.Debugf("coordinatord: refresh registered %d specs", n)
		return err
	})
	go runLoop(ctx, cfg.AssignEvery, log, "assign", func() error {
		// Assign's orphan detection reads the manager's active/empty
		// spec sets, which are only current right after an Expire pass
		// has pulled every node's latest state; running on an
		// independent ticker without this would let assign act on
		// arbitrarily stale state depending on ticker phase.
		if _, err := repo.Expire(ctx, makeClient); err != nil {
			return err
		}
		sent, considered, err := repo.Assign(ctx, makeClient)
		log.Debugf("coordinatord: assign sent %d tasks across %d nodes", sent, considered)
		return err
	})
	go runLoop(ctx, cfg.ExpireEvery, log, "expire", func() error {
		n, err := repo.Expire(ctx, makeClient)
		log.Debugf("coordinatord: expire dropped %d specs", n)
		return err
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("coordinatord: shutting down")
	return nil
}

func runLoop(ctx context.Context, every time.Duration, log logger.Logger, name string, fn func() error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil {
				log.Warnf("coordinatord: %s failed: %v", name, err)
			}
		}
	}
}

// clusterAddressLister adapts cluster.Info to node.AddressLister.
type clusterAddressLister struct {
	info cluster.Info
}

func (c clusterAddressLister) Addresses(ctx context.Context) ([]meta.Address, error) {
	nodes, err := c.info.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	addrs := make([]meta.Address, 0, len(nodes))
	for _, n := range nodes {
		addrs = append(addrs, n.Address)
	}
	return addrs, nil
}

// repoLostReporter adapts ingest.Repo to node.LostReporter.
type repoLostReporter struct {
	repo *ingest.Repo
}

func (r repoLostReporter) Lost(addr meta.Address) int {
	return r.repo.Lost(addr)
}

// echoProber probes liveness with the same echo RPC the original
// system used independently of any query traffic.
type echoProber struct {
	makeClient node.ClientMaker
}

func (e echoProber) Poll(addr meta.Address) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.makeClient(addr).Echo(ctx, "coordinatord")
	return err == nil
}
