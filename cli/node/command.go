package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/spread/node"
	"github.com/andydunstall/spread/node/config"
	spreadconfig "github.com/andydunstall/spread/pkg/config"
	"github.com/andydunstall/spread/pkg/log"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a node",
		Long: `Start a node.

Each node stores a set of records and keeps it in sync with its peers. Every
'--gossip.frequency' the node sends a bloom filter of its records to
'--gossip.poll-size' random peers, which respond with the records the node is
missing.

Records can be published to the node using the admin API (see 'spread
publish'), which are then pushed to the nodes peers.

Use '--peer.join' to configure the addresses of existing nodes to connect to.
Records propagate through connected peers, so each node only needs to connect
to a subset of nodes.

Examples:
  # Start a node.
  spread node

  # Start a node, listening for peer connections on :7000 and admin
  # connections on :7001.
  spread node --peer.bind-addr :7000 --admin.bind-addr :7001

  # Start a node and join existing nodes.
  spread node --peer.join 10.26.104.14:7000,10.26.104.75:7000

  # Start a node that gossips every 500ms with 3 peers.
  spread node --gossip.frequency 500ms --gossip.poll-size 3
`,
	}

	var conf config.Config

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := spreadconfig.Load(configPath, &conf, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if conf.Peer.AdvertiseAddr == "" {
			advertiseAddr, err := advertiseAddrFromBindAddr(conf.Peer.BindAddr)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				os.Exit(1)
			}
			conf.Peer.AdvertiseAddr = advertiseAddr
		}

		if err := run(&conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	logger.Info("starting spread node", zap.Any("conf", conf))

	registry := prometheus.NewRegistry()

	n, err := node.NewNode(conf, registry, logger)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Node.
	nodeCtx, nodeCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return n.Run(nodeCtx)
	}, func(error) {
		nodeCancel()
	})

	return group.Run()
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
