package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/pkg/types"
)

// RefreshSummary reports the outcome of one embedding refresh pass.
// Per-entity failures are counted, never propagated: one bad entity must
// not abort the batch.
type RefreshSummary struct {
	Attempted int
	Succeeded int
	Failed    int
}

// BatchProcessor owns the two periodic passes of the engine: the embedding
// refresh pass and the cluster recalculation pass. Each runs on its own
// independent timer; both also run once immediately on Start so a freshly
// started process has current data without waiting out the first interval.
//
// All collaborators are injected at construction. The processor never
// builds its own services or reaches into another component's internals.
type BatchProcessor struct {
	config Config

	ids     storage.IDSource
	service EmbeddingService
	recalc  *Recalculator
	results storage.ClusterStore

	// isRunning guards Start/Stop; these are rare operator-driven calls,
	// so a mutex-protected flag suffices.
	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewBatchProcessor creates a BatchProcessor with the given collaborators.
// ids, service, and recalc are required. results may be nil, which disables
// the CurrentAssignment lookup.
func NewBatchProcessor(config Config, ids storage.IDSource, service EmbeddingService, recalc *Recalculator, results storage.ClusterStore) (*BatchProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if ids == nil {
		return nil, fmt.Errorf("id source is required")
	}
	if service == nil {
		return nil, fmt.Errorf("embedding service is required")
	}
	if recalc == nil {
		return nil, fmt.Errorf("recalculator is required")
	}

	return &BatchProcessor{
		config:  config,
		ids:     ids,
		service: service,
		recalc:  recalc,
		results: results,
	}, nil
}

// Start launches both timer loops and runs an immediate pass of each.
// Calling Start while already running is a no-op with a warning, not an
// error.
func (p *BatchProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		log.Println("WARNING: batch processor already running, ignoring Start")
		return
	}
	p.isRunning = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	log.Printf("batch processor started: embedding interval=%v, clustering interval=%v",
		p.config.EmbeddingUpdateInterval, p.config.ClusteringInterval)

	p.wg.Add(2)
	go p.timerLoop(ctx, stopCh, p.config.EmbeddingUpdateInterval, "embedding refresh", p.runEmbeddingPass)
	go p.timerLoop(ctx, stopCh, p.config.ClusteringInterval, "cluster recalculation", p.runClusteringPass)
}

// Stop halts both timer loops. In-flight passes are not cancelled, only
// prevented from being rescheduled. Stop is idempotent.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	log.Println("batch processor stopped")
}

// IsRunning reports whether the timers are active.
func (p *BatchProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

// ForceUpdate runs both passes once, embeddings then clustering,
// independent of the timers. Used for manual/administrative triggering.
// Unlike scheduled ticks, recalculation errors propagate to the caller.
func (p *BatchProcessor) ForceUpdate(ctx context.Context) (RefreshSummary, error) {
	summary := p.refreshEmbeddings(ctx)
	log.Printf("forced embedding pass: attempted=%d succeeded=%d failed=%d",
		summary.Attempted, summary.Succeeded, summary.Failed)

	var errs []error
	for _, entityType := range []types.EntityType{types.EntityTypePost, types.EntityTypeUser} {
		if _, err := p.recalc.Recalculate(ctx, entityType); err != nil {
			errs = append(errs, fmt.Errorf("%s recalculation: %w", entityType, err))
		}
	}
	return summary, errors.Join(errs...)
}

// CurrentAssignment returns the cluster the given entity belongs to in the
// most recently persisted result, or nil when the entity is noise or no
// run has been persisted yet.
func (p *BatchProcessor) CurrentAssignment(ctx context.Context, entityType types.EntityType, entityID string) (*types.Cluster, error) {
	if p.results == nil {
		return nil, fmt.Errorf("no cluster store configured")
	}

	result, err := p.results.LatestClusteringResult(ctx, entityType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return result.AssignmentFor(entityID), nil
}

// timerLoop runs fn immediately and then on every interval tick until the
// processor stops. Each tick is wrapped so that neither an error nor a
// panic can kill the loop: one failed run must not cancel future ticks.
func (p *BatchProcessor) timerLoop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration, name string, fn func(context.Context)) {
	defer p.wg.Done()

	p.safeRun(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeRun(ctx, name, fn)
		}
	}
}

// safeRun is the outermost boundary for scheduled work: it recovers panics
// so the timer keeps firing regardless of this tick's outcome.
func (p *BatchProcessor) safeRun(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: %s pass panicked: %v", name, r)
		}
	}()
	fn(ctx)
}

// runEmbeddingPass is the scheduled form of the refresh pass.
func (p *BatchProcessor) runEmbeddingPass(ctx context.Context) {
	summary := p.refreshEmbeddings(ctx)
	log.Printf("embedding pass: attempted=%d succeeded=%d failed=%d",
		summary.Attempted, summary.Succeeded, summary.Failed)
}

// runClusteringPass is the scheduled form of recalculation. Errors are
// logged, not propagated: the scheduling loop is the outermost boundary.
func (p *BatchProcessor) runClusteringPass(ctx context.Context) {
	for _, entityType := range []types.EntityType{types.EntityTypePost, types.EntityTypeUser} {
		if _, err := p.recalc.Recalculate(ctx, entityType); err != nil {
			log.Printf("ERROR: scheduled %s recalculation failed: %v", entityType, err)
		}
	}
}

// refreshEmbeddings runs one full refresh pass over both populations, each
// bounded by MaxItemsPerRun.
func (p *BatchProcessor) refreshEmbeddings(ctx context.Context) RefreshSummary {
	var total RefreshSummary

	for _, entityType := range []types.EntityType{types.EntityTypeUser, types.EntityTypePost} {
		summary, err := p.refreshPopulation(ctx, entityType)
		if err != nil {
			// An ID source failure aborts this population's pass, but the
			// other population still gets its turn.
			log.Printf("ERROR: %s embedding refresh aborted: %v", entityType, err)
		}
		total.Attempted += summary.Attempted
		total.Succeeded += summary.Succeeded
		total.Failed += summary.Failed
	}

	return total
}

// refreshPopulation pages entity IDs up to MaxItemsPerRun and refreshes
// each entity's embedding. Refreshes within one page are issued
// concurrently and the page waits for all of them to settle; a failure for
// one entity is logged and counted, never fatal to the batch.
func (p *BatchProcessor) refreshPopulation(ctx context.Context, entityType types.EntityType) (RefreshSummary, error) {
	var summary RefreshSummary
	offset := 0

	for summary.Attempted < p.config.MaxItemsPerRun {
		limit := p.config.BatchSize
		if remaining := p.config.MaxItemsPerRun - summary.Attempted; remaining < limit {
			limit = remaining
		}

		ids, err := p.ids.FindAllIDs(ctx, entityType, limit, offset)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch %s ids at offset %d: %w", entityType, offset, err)
		}
		if len(ids) == 0 {
			break
		}

		succeeded, failed := p.refreshPage(ctx, entityType, ids)
		summary.Attempted += len(ids)
		summary.Succeeded += succeeded
		summary.Failed += failed

		offset += len(ids)
		if len(ids) < limit {
			break
		}
	}

	return summary, nil
}

// refreshPage refreshes one page of entities with bounded concurrency and
// waits for every operation to settle before returning counts.
func (p *BatchProcessor) refreshPage(ctx context.Context, entityType types.EntityType, ids []string) (succeeded, failed int) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, p.config.RefreshConcurrency)
	)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(entityID string) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			switch entityType {
			case types.EntityTypeUser:
				err = p.service.RefreshUserEmbedding(ctx, entityID)
			default:
				err = p.service.RefreshPostEmbedding(ctx, entityID)
			}

			mu.Lock()
			if err != nil {
				failed++
				log.Printf("WARNING: failed to refresh %s %s: %v", entityType, entityID, err)
			} else {
				succeeded++
			}
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return succeeded, failed
}
