package blockchain

import (
	"context"
	"errors"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/store"
)

// MaxHeadersPerPull bounds the answer to a single header pull.
const MaxHeadersPerPull = 2000

func (bc *Blockchain) headerOf(hash block.HeaderHash) (*block.Header, error) {
	if ref, ok := bc.refs.Get(hash); ok {
		h := ref.Header()
		return &h, nil
	}
	h, err := bc.storage.GetHeader(hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindBlockNotFound, hash, err)
	}
	if err != nil {
		return nil, NewError(KindStorage, hash, err)
	}
	return h, nil
}

// GetCheckpoints samples the ancestors of the branch tip at exponentially
// growing distances (0, 1, 2, 4, 8, ...), ending with block0. The result
// goes from the tip downward. Within ForkDepth of the tip the branch is
// walked header by header; further down every stored block at a sampled
// chain length is listed, since any stored block is a valid common point.
func (bc *Blockchain) GetCheckpoints(ctx context.Context, branch *Branch) ([]block.HeaderHash, error) {
	tip := branch.Tip()
	checkpoints := []block.HeaderHash{tip.Hash()}
	tipLength := uint32(tip.ChainLength())

	hash := tip.ParentHash()
	distance, next := uint32(1), uint32(1)
	for ; distance <= tipLength && distance <= bc.opts.ForkDepth; distance++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := bc.headerOf(hash)
		if err != nil {
			return nil, err
		}
		if distance == next || distance == tipLength {
			checkpoints = append(checkpoints, hash)
			if distance == next {
				next *= 2
			}
		}
		hash = header.ParentHash
	}
	if distance > tipLength {
		return checkpoints, nil
	}

	for ; next < tipLength; next *= 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		length := block.ChainLength(tipLength - next)
		hashes, err := bc.storage.HashesAtLength(length)
		if err != nil {
			return nil, NewError(KindStorage, block.ZeroHash, err)
		}
		checkpoints = append(checkpoints, hashes...)
	}
	block0 := bc.Block0()
	if block0 == nil {
		return nil, NewError(KindBlock0, block.ZeroHash, errors.New("block0 is not loaded"))
	}
	return append(checkpoints, block0.Hash()), nil
}

// GetHeaders answers a header pull: the headers after the most recent
// ancestor of to listed in from, up to and including to, in ascending
// order. Block0 is the implicit common ancestor when none of from is met.
func (bc *Blockchain) GetHeaders(ctx context.Context, from []block.HeaderHash, to block.HeaderHash) ([]*block.Header, error) {
	stop := make(map[block.HeaderHash]struct{}, len(from))
	for _, h := range from {
		stop[h] = struct{}{}
	}

	var headers []*block.Header
	hash := to
	for {
		if _, ok := stop[hash]; ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := bc.headerOf(hash)
		if err != nil {
			return nil, err
		}
		if header.ChainLength == 0 {
			break
		}
		headers = append(headers, header)
		if len(headers) > MaxHeadersPerPull {
			// keep the oldest ones, the peer asks again from there
			headers = headers[1:]
		}
		hash = header.ParentHash
	}

	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
	return headers, nil
}
