package explorer

import (
	"context"
	"fmt"
	"time"

	"github.com/mezonai/mvnode/exception"
	"github.com/mezonai/mvnode/intercom"
	"github.com/mezonai/mvnode/logx"
)

// Process feeds ExplorerMsg into the DB. Each block is indexed in its own
// goroutine.
type Process struct {
	db              *DB
	tasks           exception.Group
	shutdownTimeout time.Duration
}

func NewProcess(db *DB, shutdownTimeout time.Duration) *Process {
	return &Process{db: db, shutdownTimeout: shutdownTimeout}
}

func (p *Process) DB() *DB {
	return p.db
}

// Run consumes input until it is closed or ctx is done, then waits up to
// the shutdown timeout for indexing still in flight.
func (p *Process) Run(ctx context.Context, input <-chan intercom.ExplorerMsg) error {
	logx.Info("EXPLORER", "Explorer started")
	taskCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return p.stop()
		case msg, ok := <-input:
			if !ok {
				return p.stop()
			}
			p.spawn(taskCtx, msg)
		}
	}
}

func (p *Process) spawn(ctx context.Context, msg intercom.ExplorerMsg) {
	ref := msg.NewBlock
	if ref == nil {
		return
	}
	p.tasks.Go("explorer-index", func() {
		if err := p.db.Index(ctx, ref); err != nil {
			logx.Error("EXPLORER", fmt.Sprintf("Explorer error: %v", err))
			return
		}
		logx.Debug("EXPLORER", "indexed block ", ref.Hash(), " at chain length ", ref.ChainLength())
	})
}

func (p *Process) stop() error {
	defer logx.Info("EXPLORER", "Explorer stopped")
	if err := p.tasks.Wait(p.shutdownTimeout); err != nil {
		return fmt.Errorf("explorer shutdown: %w", err)
	}
	return nil
}
