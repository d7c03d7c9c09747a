// Package node runs a spread node, which stores records and gossips them
// with its peers.
package node

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/spread/node/admin"
	"github.com/andydunstall/spread/node/config"
	"github.com/andydunstall/spread/node/status"
	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/log"
	"github.com/andydunstall/spread/pkg/record"
	"github.com/andydunstall/spread/pkg/transport"
)

// Node stores a set of blob records and keeps it in sync with the sets of
// its peers.
//
// Records are pulled from peers using anti-entropy gossip, and records
// published to the node are pushed to peers.
type Node struct {
	set        *gossip.MemorySet[*record.Blob]
	marshaller *record.BlobMarshaller
	gossiper   *gossip.Gossiper[*record.Blob]
	pusher     *gossip.PushGossiper[*record.Blob]

	transport   *transport.Transport
	peerServer  *transport.Server
	adminServer *admin.Server

	conf   *config.Config
	logger log.Logger
}

// NewNode creates a node from the given configuration. The node listens on
// the configured peer and admin addresses, though doesn't accept connections
// until Run is called.
//
// If the configuration has no node ID, an ID is generated. If there is no
// peer advertise address, the peer listeners address is used.
func NewNode(
	conf *config.Config,
	registry *prometheus.Registry,
	logger log.Logger,
) (*Node, error) {
	if conf.Node.ID == "" {
		conf.Node.ID = conf.Node.IDPrefix + GenerateNodeID()
	}

	peerLn, err := net.Listen("tcp", conf.Peer.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("peer listen: %s: %w", conf.Peer.BindAddr, err)
	}
	if conf.Peer.AdvertiseAddr == "" {
		conf.Peer.AdvertiseAddr = peerLn.Addr().String()
	}

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		peerLn.Close()
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}

	gossipMetrics := gossip.NewMetrics()
	transportMetrics := transport.NewMetrics()
	if registry != nil {
		gossipMetrics.Register(registry)
		transportMetrics.Register(registry)
	}

	marshaller := record.NewBlobMarshaller(conf.Records.MaxSize)
	setOpts := []gossip.MemorySetOption{
		gossip.WithCapacity(conf.Records.Capacity),
		gossip.WithFalsePositiveRate(conf.Records.FalsePositiveRate),
	}
	if conf.Records.Eviction {
		setOpts = append(setOpts, gossip.WithEviction())
	}
	set, err := gossip.NewMemorySet[*record.Blob](marshaller, setOpts...)
	if err != nil {
		peerLn.Close()
		adminLn.Close()
		return nil, fmt.Errorf("records: %w", err)
	}
	if registry != nil {
		registry.MustRegister(newRecordsCollector(set))
	}

	router := gossip.NewRouter()
	if err := router.Register(conf.Gossip.ProtocolID, gossip.NewSetHandler(
		conf.Gossip, set, marshaller, logger,
		gossip.WithMetrics(gossipMetrics),
	)); err != nil {
		peerLn.Close()
		adminLn.Close()
		return nil, fmt.Errorf("router: %w", err)
	}

	t := transport.NewTransport(
		gossip.PeerID(conf.Node.ID),
		conf.Peer,
		router,
		logger,
		transport.WithMetrics(transportMetrics),
	)
	gossiper, err := gossip.NewGossiper(
		conf.Gossip, set, t, marshaller, logger,
		gossip.WithMetrics(gossipMetrics),
	)
	if err != nil {
		peerLn.Close()
		adminLn.Close()
		return nil, fmt.Errorf("gossiper: %w", err)
	}
	pusher, err := gossip.NewPushGossiper(
		conf.Gossip, t, marshaller, logger,
		gossip.WithMetrics(gossipMetrics),
	)
	if err != nil {
		peerLn.Close()
		adminLn.Close()
		return nil, fmt.Errorf("push gossiper: %w", err)
	}

	adminServer := admin.NewServer(adminLn, registry, logger)
	adminServer.AddStatus("/records", status.NewRecordsHandler(
		set, pusher, marshaller,
	))
	adminServer.AddStatus("/gossip", status.NewGossipHandler(
		gossiper, set.Len, pusher.Pending,
	))
	adminServer.AddStatus("/peers", status.NewPeersHandler(t))

	return &Node{
		set:         set,
		marshaller:  marshaller,
		gossiper:    gossiper,
		pusher:      pusher,
		transport:   t,
		peerServer:  transport.NewServer(peerLn, t, logger),
		adminServer: adminServer,
		conf:        conf,
		logger:      logger.WithSubsystem("node"),
	}, nil
}

// Run serves peer and admin connections, joins the configured peers and
// runs gossip until the context is cancelled or a component fails.
//
// Once the context is cancelled, Run gracefully shuts down each component,
// waiting up to the configured grace period.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info(
		"starting node",
		zap.String("node-id", n.conf.Node.ID),
		zap.String("advertise-addr", n.conf.Peer.AdvertiseAddr),
	)

	var group rungroup.Group

	// Termination handler.
	runCtx, runCancel := context.WithCancel(ctx)
	group.Add(func() error {
		<-runCtx.Done()
		return nil
	}, func(error) {
		runCancel()
	})

	// Join.
	joinCtx, joinCancel := context.WithCancel(ctx)
	group.Add(func() error {
		if err := n.join(joinCtx); err != nil {
			return err
		}
		<-joinCtx.Done()
		return nil
	}, func(error) {
		joinCancel()
	})

	// Peer server.
	group.Add(func() error {
		if err := n.peerServer.Serve(); err != nil {
			return fmt.Errorf("peer server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), n.conf.GracePeriod,
		)
		defer cancel()

		if err := n.peerServer.Shutdown(shutdownCtx); err != nil {
			n.logger.Warn("failed to gracefully shutdown peer server", zap.Error(err))
		}

		n.logger.Info("peer server shut down")
	})

	// Admin server.
	group.Add(func() error {
		if err := n.adminServer.Serve(); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), n.conf.GracePeriod,
		)
		defer cancel()

		if err := n.adminServer.Shutdown(shutdownCtx); err != nil {
			n.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		n.logger.Info("admin server shut down")
	})

	// Gossip.
	gossipCtx, gossipCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		if err := n.gossiper.Run(gossipCtx); err != nil {
			return fmt.Errorf("gossiper: %w", err)
		}
		return nil
	}, func(error) {
		gossipCancel()
	})

	pushCtx, pushCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		if err := n.pusher.Run(pushCtx); err != nil {
			return fmt.Errorf("push gossiper: %w", err)
		}
		return nil
	}, func(error) {
		pushCancel()
	})

	if err := group.Run(); err != nil {
		return err
	}

	n.logger.Info("shutdown complete")

	return nil
}

// Publish adds the payload to the local set as a record and queues the
// record to be pushed to peers.
func (n *Node) Publish(payload []byte) (*record.Blob, error) {
	b := n.marshaller.NewBlob(payload)
	if err := n.set.Add(b); err != nil {
		return nil, err
	}
	n.pusher.Add(b)
	return b, nil
}

// Records returns the local record set.
func (n *Node) Records() *gossip.MemorySet[*record.Blob] {
	return n.set
}

// Transport returns the peer transport.
func (n *Node) Transport() *transport.Transport {
	return n.transport
}

func (n *Node) join(ctx context.Context) error {
	if len(n.conf.Peer.Join) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.conf.Peer.JoinTimeout)
	defer cancel()

	peerIDs, err := n.transport.Join(ctx, n.conf.Peer.Join)
	if err != nil {
		if n.conf.Peer.AbortIfJoinFails {
			return fmt.Errorf("join: %w", err)
		}
		n.logger.Warn("failed to join peers", zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(peerIDs))
	for _, id := range peerIDs {
		ids = append(ids, string(id))
	}
	n.logger.Info("joined peers", zap.Strings("peer-ids", ids))
	return nil
}

// GenerateNodeID generates a unique node identifier.
func GenerateNodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
