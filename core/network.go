// SPDX-License-Identifier: Apache-2.0
//
// PeerBus: the node's P2P boundary. Wire framing, compression and
// encryption stay inside libp2p; the rest of the node only sees typed
// payload deliveries on a topic per message kind.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// PeerID identifies a remote node on the gossip network.
type PeerID string

// PayloadKind tags the gossip topic a PeerBus message was published on, so a
// single inbound channel can carry the node's whole message vocabulary.
type PayloadKind byte

const (
	PayloadTransaction PayloadKind = iota
	PayloadBlock
	PayloadConsensus
)

func (k PayloadKind) topic() string {
	switch k {
	case PayloadTransaction:
		return "neo/tx"
	case PayloadBlock:
		return "neo/block"
	case PayloadConsensus:
		return "neo/consensus"
	default:
		return "neo/unknown"
	}
}

// InboundMessage is one decoded gossip delivery handed to an actor.
type InboundMessage struct {
	From PeerID
	Kind PayloadKind
	Data []byte
}

// PeerBus is the abstract transport every actor (mempool, blockchain,
// consensus) depends on instead of talking to libp2p directly.
type PeerBus interface {
	Publish(kind PayloadKind, data []byte) error
	Subscribe(kind PayloadKind) (<-chan InboundMessage, error)
	RequestTransactions(hashes []U256) error
	Peers() []PeerID
	Close() error
}

// GossipConfig configures a GossipPeerBus.
type GossipConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// GossipPeerBus implements PeerBus over libp2p gossipsub.
type GossipPeerBus struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription

	peerLock sync.RWMutex
	peers    map[PeerID]struct{}
}

// NewGossipPeerBus bootstraps a libp2p host and gossipsub router and dials
// the configured bootstrap peers. No topic is joined here; Publish and
// Subscribe join a topic on first use.
func NewGossipPeerBus(cfg GossipConfig) (*GossipPeerBus, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("peerbus: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("peerbus: create pubsub: %w", err)
	}

	bus := &GossipPeerBus{
		host:   h,
		pubsub: ps,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
		peers:  make(map[PeerID]struct{}),
	}

	if err := bus.dialSeeds(cfg.BootstrapPeers); err != nil {
		logrus.Warnf("peerbus: dial errors: %v", err)
	}
	if cfg.DiscoveryTag != "" {
		if err := mdns.NewMdnsService(h, cfg.DiscoveryTag, bus).Start(); err != nil {
			logrus.Warnf("peerbus: mdns discovery failed: %v", err)
		}
	}
	return bus, nil
}

var _ mdns.Notifee = (*GossipPeerBus)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer.
func (b *GossipPeerBus) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == b.host.ID() {
		return
	}
	id := PeerID(info.ID.String())
	b.peerLock.RLock()
	_, known := b.peers[id]
	b.peerLock.RUnlock()
	if known {
		return
	}
	if err := b.host.Connect(b.ctx, info); err != nil {
		logrus.Warnf("peerbus: connect to %s: %v", id, err)
		return
	}
	b.peerLock.Lock()
	b.peers[id] = struct{}{}
	b.peerLock.Unlock()
	logrus.Infof("peerbus: connected to %s via mDNS", id)
}

func (b *GossipPeerBus) dialSeeds(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			errs = append(errs, fmt.Sprintf("addr %s has no peer id: %v", addr, err))
			continue
		}
		if err := b.host.Connect(b.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		b.peerLock.Lock()
		b.peers[PeerID(pi.ID.String())] = struct{}{}
		b.peerLock.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (b *GossipPeerBus) joinTopic(name string) (*pubsub.Topic, error) {
	b.topicLock.Lock()
	defer b.topicLock.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	t, err := b.pubsub.Join(name)
	if err != nil {
		return nil, err
	}
	b.topics[name] = t
	return t, nil
}

// Publish broadcasts data on kind's topic.
func (b *GossipPeerBus) Publish(kind PayloadKind, data []byte) error {
	t, err := b.joinTopic(kind.topic())
	if err != nil {
		return fmt.Errorf("peerbus: join topic: %w", err)
	}
	if err := t.Publish(b.ctx, data); err != nil {
		return fmt.Errorf("peerbus: publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of inbound deliveries for kind.
func (b *GossipPeerBus) Subscribe(kind PayloadKind) (<-chan InboundMessage, error) {
	name := kind.topic()
	b.topicLock.Lock()
	sub, ok := b.subs[name]
	if !ok {
		t, err := b.joinTopic(name)
		if err != nil {
			b.topicLock.Unlock()
			return nil, err
		}
		sub, err = t.Subscribe()
		if err != nil {
			b.topicLock.Unlock()
			return nil, fmt.Errorf("peerbus: subscribe %s: %w", name, err)
		}
		b.subs[name] = sub
	}
	b.topicLock.Unlock()

	out := make(chan InboundMessage, 64)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(b.ctx)
			if err != nil {
				logrus.Warnf("peerbus: subscription %s closed: %v", name, err)
				return
			}
			out <- InboundMessage{From: PeerID(msg.GetFrom().String()), Kind: kind, Data: msg.Data}
		}
	}()
	return out, nil
}

// RequestTransactions asks peers for the given tx hashes, used by a backup
// validator that received a PrepareRequest referencing unknown hashes.
func (b *GossipPeerBus) RequestTransactions(hashes []U256) error {
	var buf []byte
	bw := NewBinaryWriter(&writerBuf{&buf})
	bw.WriteVarInt(uint64(len(hashes)))
	for _, h := range hashes {
		bw.WriteU256(h)
	}
	if bw.Err() != nil {
		return bw.Err()
	}
	return b.Publish(PayloadTransaction, append([]byte{0xFF}, buf...)) // 0xFF prefix marks a request, not a tx body
}

// writerBuf adapts a *[]byte to io.Writer for the rare case BinaryWriter is
// used without a bytes.Buffer at hand.
type writerBuf struct{ b *[]byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	*w.b = append(*w.b, p...)
	return len(p), nil
}

// Peers lists currently connected peer IDs.
func (b *GossipPeerBus) Peers() []PeerID {
	b.peerLock.RLock()
	defer b.peerLock.RUnlock()
	out := make([]PeerID, 0, len(b.peers))
	for p := range b.peers {
		out = append(out, p)
	}
	return out
}

// Close tears down the libp2p host and cancels all subscriptions.
func (b *GossipPeerBus) Close() error {
	b.cancel()
	return b.host.Close()
}
