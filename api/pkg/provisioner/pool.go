package provisioner

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/types"
)

// RunAll executes a batch of jobs with at most maxConcurrent browsers
// alive at once. Every job gets a result; one tenant failing never stops
// the rest of the batch. Results are indexed like the input.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []*types.ProvisioningJob, maxConcurrent int) []*types.RunResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]*types.RunResult, len(jobs))
	semaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for index, job := range jobs {
		wg.Add(1)
		semaphore <- struct{}{} // Block if concurrency is reached
		go func(index int, job *types.ProvisioningJob) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				log.Warn().Str("job_id", job.ID).Msg("batch cancelled before job started")
				result := &types.RunResult{
					JobID:    job.ID,
					TenantID: job.TenantID,
					Captured: map[types.TokenKind]string{},
				}
				results[index] = o.fail(job, result, ReasonJobTimeout)
				return
			}
			results[index] = o.Run(ctx, job)
		}(index, job)
	}

	wg.Wait()
	return results
}
