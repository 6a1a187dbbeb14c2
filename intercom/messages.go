package intercom

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
)

// NodeID identifies a peer.
type NodeID = peer.ID

// BlockMsg is the input of the block processor.
type BlockMsg interface {
	isBlockMsg()
}

// LeadershipExpectEndOfEpoch tells the processor that Epoch is ending and
// the schedule of the next one is due.
type LeadershipExpectEndOfEpoch struct {
	Epoch block.Epoch
}

// LeadershipBlock is a block minted by this node.
type LeadershipBlock struct {
	Block *block.Block
}

// AnnouncedBlock is a header advertised by a peer.
type AnnouncedBlock struct {
	Header *block.Header
	Peer   NodeID
}

// NetworkBlock is a full block delivered by a peer.
type NetworkBlock struct {
	Block *block.Block
	Reply *Reply[struct{}]
}

// ChainHeaders is a run of headers delivered by a peer after a header pull.
// The reply lists the hashes whose blocks should be fetched, in order.
type ChainHeaders struct {
	Headers []*block.Header
	Reply   *Reply[[]block.HeaderHash]
}

type Shutdown struct{}

func (LeadershipExpectEndOfEpoch) isBlockMsg() {}
func (LeadershipBlock) isBlockMsg()            {}
func (AnnouncedBlock) isBlockMsg()             {}
func (NetworkBlock) isBlockMsg()               {}
func (ChainHeaders) isBlockMsg()               {}
func (Shutdown) isBlockMsg()                   {}

// NetworkMsg is produced by the block processor for the network layer.
type NetworkMsg interface {
	isNetworkMsg()
}

// Propagate broadcasts a new tip header.
type Propagate struct {
	Header block.Header
}

// PullHeaders asks Peer for the headers from the most recent of From up to To.
type PullHeaders struct {
	Peer NodeID
	From []block.HeaderHash
	To   block.HeaderHash
}

// GetNextBlock asks Peer for one full block.
type GetNextBlock struct {
	Peer NodeID
	Hash block.HeaderHash
}

func (Propagate) isNetworkMsg()    {}
func (PullHeaders) isNetworkMsg()  {}
func (GetNextBlock) isNetworkMsg() {}

// ExplorerMsg hands a stored Ref to the explorer index.
type ExplorerMsg struct {
	NewBlock *blockchain.Ref
}
