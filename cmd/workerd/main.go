// Command workerd runs a single worker node: it exposes the RPC
// surface a coordinator drives (echo/poll/task, plus a query endpoint
// that answers as not implemented) and materializes
// specs against a configured filesystem backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/blockmeshdb/coordinator/cluster"
	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
	"github.com/blockmeshdb/coordinator/storage"
)

// Config holds workerd's runtime settings.
type Config struct {
	Listen        string   `mapstructure:"listen"`
	EtcdEndpoints []string `mapstructure:"etcd-endpoints"`
	StorageURL    string   `mapstructure:"storage-url"`
	TempDir       string   `mapstructure:"temp-dir"`
	Verbose       bool     `mapstructure:"verbose"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WORKER")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "workerd",
		Short: "Run a single ingestion worker node.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("parsing config: %w", err)
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "0.0.0.0:8080", "address to serve the node RPC surface on")
	flags.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints backing the cluster config store")
	flags.String("storage-url", "file:///var/lib/workerd/data", "gocloud.dev blob URL this worker reads partitions from")
	flags.String("temp-dir", os.TempDir(), "scratch directory for temporary files")
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

	manager := execution.NewManager()
	self := meta.Address(cfg.Listen)
	server := node.NewServer(self, manager, node.FSLoader{FS: fs}, log)

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to etcd: %w", err)
	}
	defer etcdClient.Close()

	registration := cluster.NewRegistration(etcdClient, self, log)
	if err := registration.Start(ctx); err != nil {
		return fmt.Errorf("registering with cluster: %w", err)
	}
	defer registration.Stop(context.Background())

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Router(),
	}
	go func() {
		log.Infof("workerd: listening on %s", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("workerd: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("workerd: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
