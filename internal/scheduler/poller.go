package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workmesh/marketmirror/internal/decoder"
	"github.com/workmesh/marketmirror/internal/ledger"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/reconciler"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
	"github.com/workmesh/marketmirror/pkg/config"
)

// Poller drives reconciliation: one loop per monitored contract address
// fetching and applying transactions, plus one loop expiring escrow
// deadlines. Cycles for the same address never overlap; a cycle that is still
// running when the next tick fires makes the tick a no-op.
type Poller struct {
	cfg        *config.PollerConfig
	contracts  []config.ContractConfig
	client     ledger.Client
	store      *store.Store
	reconciler *reconciler.Reconciler
	log        *logger.Logger
	nowFn      func() time.Time

	// inFlight guards against overlapping cycles per address.
	inFlight map[string]*atomic.Bool
}

// New creates a Poller. All dependencies are required.
func New(
	cfg *config.PollerConfig,
	contracts []config.ContractConfig,
	client ledger.Client,
	s *store.Store,
	r *reconciler.Reconciler,
	log *logger.Logger,
) (*Poller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("poller config is required")
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("at least one contract is required")
	}
	if client == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if r == nil {
		return nil, fmt.Errorf("reconciler is required")
	}

	inFlight := make(map[string]*atomic.Bool, len(contracts))
	for _, contract := range contracts {
		inFlight[contract.Address] = &atomic.Bool{}
	}

	return &Poller{
		cfg:        cfg,
		contracts:  contracts,
		client:     client,
		store:      s,
		reconciler: r,
		log:        log.WithComponent("poller"),
		nowFn:      time.Now,
		inFlight:   inFlight,
	}, nil
}

// Start runs all poll loops until the context is cancelled. It blocks and
// always returns the context error on shutdown.
func (p *Poller) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, contract := range p.contracts {
		contract := contract
		group.Go(func() error {
			return p.pollLoop(ctx, contract)
		})
	}

	group.Go(func() error {
		return p.deadlineLoop(ctx)
	})

	return group.Wait()
}

// pollLoop runs fetch cycles for one address, backing off exponentially after
// consecutive transient failures.
func (p *Poller) pollLoop(ctx context.Context, contract config.ContractConfig) error {
	p.log.Infof("starting poll loop for %s at interval %s", contract.Address, p.cfg.Interval.Duration)

	failures := 0
	for {
		if err := p.RunCycle(ctx, contract); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failures++
			CycleErrorsInc(contract.Address)
			p.log.Errorf("poll cycle for %s failed (%d consecutive): %v", contract.Address, failures, err)
		} else {
			failures = 0
		}

		select {
		case <-time.After(p.delay(failures)):
		case <-ctx.Done():
			p.log.Infof("stopping poll loop for %s", contract.Address)
			return ctx.Err()
		}
	}
}

// delay returns the wait before the next cycle, growing with consecutive
// failures up to the configured cap.
func (p *Poller) delay(failures int) time.Duration {
	delay := p.cfg.Interval.Duration
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= p.cfg.MaxBackoff.Duration {
			return p.cfg.MaxBackoff.Duration
		}
	}
	return delay
}

// RunCycle executes one fetch-decode-apply cycle for a contract address. It
// returns nil when the cycle was skipped because a previous one is still
// running.
func (p *Poller) RunCycle(ctx context.Context, contract config.ContractConfig) error {
	guard := p.inFlight[contract.Address]
	if !guard.CompareAndSwap(false, true) {
		OverlapSkipsInc(contract.Address)
		p.log.Warnf("cycle for %s still running, skipping tick", contract.Address)
		return nil
	}
	defer guard.Store(false)

	CyclesInc(contract.Address)

	since, err := p.loadCursor(contract)
	if err != nil {
		return err
	}

	txs, err := p.client.FetchTransactions(ctx, contract.Address, since, p.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions for %s: %w", contract.Address, err)
	}
	if len(txs) == 0 {
		return nil
	}

	// The cursor only advances past the contiguous prefix of non-deferred
	// transactions. Everything after the first deferral is still applied
	// (later events usually do not depend on it), but will be fetched and
	// re-applied next cycle; the idempotency records make that a no-op.
	advanceTo := since
	advancing := true

	for _, tx := range txs {
		deferred, err := p.processTransaction(ctx, tx)
		if err != nil {
			return err
		}
		if deferred {
			advancing = false
		}
		if advancing {
			advanceTo = tx.Sequence
		}
	}

	if advanceTo > since {
		err := p.store.WithTx(ctx, func(dbTx *sql.Tx) error {
			return p.store.SaveCursor(dbTx, &types.Cursor{
				Address:      contract.Address,
				LastSequence: advanceTo,
				UpdatedAt:    p.nowFn().Unix(),
			})
		})
		if err != nil {
			return fmt.Errorf("failed to save cursor for %s: %w", contract.Address, err)
		}
		LastSequenceSet(contract.Address, advanceTo)
	}

	return nil
}

// processTransaction decodes and applies one transaction, reporting whether
// it was deferred.
func (p *Poller) processTransaction(ctx context.Context, tx ledger.Transaction) (bool, error) {
	event, err := decoder.Decode(tx)
	if err != nil {
		if decoder.IsDecodeError(err) || errors.Is(err, decoder.ErrUnrecognizedOp) {
			// structurally dead; record it so the cursor can move on
			return false, p.recordUndecodable(ctx, tx, err)
		}
		return false, err
	}

	result, err := p.reconciler.Apply(ctx, event)
	if err != nil {
		return false, fmt.Errorf("failed to apply %s (tx %s): %w", event.Kind, tx.Hash.Hex(), err)
	}

	return result.Outcome == reconciler.OutcomeDeferred, nil
}

// recordUndecodable writes a processed record for a transaction that can
// never decode, unless one already exists from a previous delivery.
func (p *Poller) recordUndecodable(ctx context.Context, tx ledger.Transaction, cause error) error {
	p.log.Warnf("skipping undecodable transaction %s (op %d): %v", tx.Hash.Hex(), tx.OpTag, cause)

	return p.store.WithTx(ctx, func(dbTx *sql.Tx) error {
		processed, err := p.store.IsProcessed(dbTx, tx.Hash)
		if err != nil || processed {
			return err
		}
		return p.store.MarkProcessed(dbTx, &types.ProcessedTransaction{
			TxHash:      tx.Hash,
			Kind:        "undecodable",
			Outcome:     string(reconciler.OutcomeRejected),
			ProcessedAt: p.nowFn().Unix(),
		})
	})
}

// loadCursor returns the sequence to fetch after: the persisted cursor, or
// the configured start sequence for a fresh address.
func (p *Poller) loadCursor(contract config.ContractConfig) (uint64, error) {
	cursor, err := p.store.GetCursor(p.store.DB(), contract.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor for %s: %w", contract.Address, err)
	}
	if cursor == nil {
		return contract.StartSequence, nil
	}
	return cursor.LastSequence, nil
}

// deadlineLoop periodically refunds escrows whose deadline has passed.
func (p *Poller) deadlineLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refunded, err := p.reconciler.ApplyDeadlineExpiry(ctx, p.nowFn().Unix())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				p.log.Errorf("deadline pass failed: %v", err)
				continue
			}
			if refunded > 0 {
				p.log.Infof("deadline pass refunded %d escrows", refunded)
			}
		case <-ctx.Done():
			p.log.Info("stopping deadline loop")
			return ctx.Err()
		}
	}
}
