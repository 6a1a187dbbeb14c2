package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/intercom"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/monitoring"
	"github.com/mezonai/mvnode/ratelimit"
	"github.com/mezonai/mvnode/stringutil"
	"golang.org/x/sync/errgroup"
)

// Endpoint is one node as seen by the hub: its block queue, the network
// messages its processor emits, and the blockchain it serves pulls from.
type Endpoint struct {
	ID         intercom.NodeID
	Blockchain *blockchain.Blockchain
	Input      chan<- intercom.BlockMsg
	Outbox     <-chan intercom.NetworkMsg
}

// Hub delivers network messages between endpoints living in the same
// process.
type Hub struct {
	mu           sync.RWMutex
	nodes        map[intercom.NodeID]*Endpoint
	replyTimeout time.Duration
	pulls        *ratelimit.Limiter
}

func NewHub(replyTimeout time.Duration) *Hub {
	if replyTimeout <= 0 {
		replyTimeout = 10 * time.Second
	}
	return &Hub{
		nodes:        make(map[intercom.NodeID]*Endpoint),
		replyTimeout: replyTimeout,
	}
}

// LimitPulls bounds the header pulls each node may issue per window.
// Must be called before Run.
func (h *Hub) LimitPulls(cfg ratelimit.Config) {
	h.pulls = ratelimit.New(cfg)
}

func (h *Hub) Join(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[ep.ID] = ep
	monitoring.SetPeerCount(len(h.nodes) - 1)
	logx.Info("NETWORK", fmt.Sprintf("Node %s joined the hub (%d nodes)", stringutil.Short(ep.ID), len(h.nodes)))
}

func (h *Hub) endpoint(id intercom.NodeID) (*Endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ep, ok := h.nodes[id]
	return ep, ok
}

func (h *Hub) others(id intercom.NodeID) []*Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Endpoint, 0, len(h.nodes))
	for other, ep := range h.nodes {
		if other != id {
			out = append(out, ep)
		}
	}
	return out
}

// Run serves the outbox of every joined endpoint until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.RLock()
	endpoints := make([]*Endpoint, 0, len(h.nodes))
	for _, ep := range h.nodes {
		endpoints = append(endpoints, ep)
	}
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			return h.serve(ctx, ep)
		})
	}
	return g.Wait()
}

func (h *Hub) serve(ctx context.Context, src *Endpoint) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-src.Outbox:
			if !ok {
				return nil
			}
			if err := h.dispatch(ctx, src, msg); err != nil {
				logx.Warn("NETWORK", fmt.Sprintf("%T from %s failed: %v", msg, stringutil.Short(src.ID), err))
			}
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, src *Endpoint, msg intercom.NetworkMsg) error {
	switch m := msg.(type) {
	case intercom.Propagate:
		header := m.Header
		for _, dst := range h.others(src.ID) {
			if err := deliver(ctx, dst, intercom.AnnouncedBlock{Header: &header, Peer: src.ID}); err != nil {
				return err
			}
		}
		return nil

	case intercom.PullHeaders:
		if h.pulls != nil && !h.pulls.Allow(string(src.ID)) {
			return fmt.Errorf("header pull rate exceeded")
		}
		target, ok := h.endpoint(m.Peer)
		if !ok {
			return fmt.Errorf("unknown peer %s", m.Peer)
		}
		return h.pullHeaders(ctx, src, target, m.From, m.To)

	case intercom.GetNextBlock:
		target, ok := h.endpoint(m.Peer)
		if !ok {
			return fmt.Errorf("unknown peer %s", m.Peer)
		}
		return h.fetchBlocks(ctx, src, target, []block.HeaderHash{m.Hash})
	}
	return fmt.Errorf("unexpected message %T", msg)
}

// pullHeaders asks target for the headers, lets src select the blocks it
// misses and then fetches those blocks in order.
func (h *Hub) pullHeaders(ctx context.Context, src, target *Endpoint, from []block.HeaderHash, to block.HeaderHash) error {
	headers, err := target.Blockchain.GetHeaders(ctx, from, to)
	if err != nil {
		return fmt.Errorf("serving header pull: %w", err)
	}

	reply := intercom.NewReply[[]block.HeaderHash]()
	if err := deliver(ctx, src, intercom.ChainHeaders{Headers: headers, Reply: reply}); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, h.replyTimeout)
	defer cancel()
	wanted, err := reply.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("header stream refused: %w", err)
	}
	return h.fetchBlocks(ctx, src, target, wanted)
}

func (h *Hub) fetchBlocks(ctx context.Context, src, target *Endpoint, hashes []block.HeaderHash) error {
	for _, hash := range hashes {
		blk, err := target.Blockchain.GetBlock(ctx, hash)
		if err != nil {
			return fmt.Errorf("serving block %s: %w", hash, err)
		}
		reply := intercom.NewReply[struct{}]()
		if err := deliver(ctx, src, intercom.NetworkBlock{Block: blk, Reply: reply}); err != nil {
			return err
		}
		waitCtx, cancel := context.WithTimeout(ctx, h.replyTimeout)
		_, err = reply.Wait(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("block %s refused: %w", hash, err)
		}
	}
	return nil
}

func deliver(ctx context.Context, dst *Endpoint, msg intercom.BlockMsg) error {
	select {
	case dst.Input <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
