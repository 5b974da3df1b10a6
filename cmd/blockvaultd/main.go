// Command blockvaultd serves a tiny persistent file system over a single
// disk image to line-protocol TCP clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/concordiafs/blockvault/internal/server"
	"github.com/concordiafs/blockvault/internal/volume"
)

var (
	diskPath  string
	blockSize int
	maxFiles  int
	maxBlocks int
	addr      string
	verbose   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "blockvaultd",
		Short:   "Serve a fixed-capacity single-file volume over TCP",
		Version: "0.1.0-dev",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&diskPath, "disk", "blockvault.img", "path to the volume image")
	root.PersistentFlags().IntVar(&blockSize, "block-size", 256, "payload bytes per block")
	root.PersistentFlags().IntVar(&maxFiles, "max-files", 128, "capacity of the inode table")
	root.PersistentFlags().IntVar(&maxBlocks, "max-blocks", 1024, "number of data blocks")
	root.PersistentFlags().StringVar(&addr, "addr", ":12345", "TCP listen address")

	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the volume and start accepting client connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := newLogger(verbose)

	v := viper.New()
	cfg, err := server.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("loading server config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	totalBytes := int(volume.Params{BlockSize: blockSize, MaxFiles: maxFiles, MaxBlocks: maxBlocks}.Needed())
	mgr, err := volume.Open(diskPath, totalBytes, blockSize, maxFiles, maxBlocks, log.WithField("component", "volume"))
	if err != nil {
		return fmt.Errorf("opening volume %s: %w", diskPath, err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	srv := server.New(cfg, mgr, log.WithField("component", "server"))
	return srv.Serve(ctx)
}

func newLogger(verbose bool) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}
