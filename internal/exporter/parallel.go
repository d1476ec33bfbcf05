package exporter

import (
	"fmt"
	"sync"

	"github.com/hupe1980/ldifexport/internal/entry"
	"github.com/hupe1980/ldifexport/internal/selection"
)

// parallelDecide fans policy evaluation out over a bounded worker pool.
// Each worker writes only its own slot of results.
func parallelDecide(p *selection.Policy, batch []*entry.Entry, results []decided, workers int) {
	var wg sync.WaitGroup

	sem := make(chan struct{}, workers)

	for i, e := range batch {
		wg.Add(1)

		sem <- struct{}{} // acquire semaphore slot

		go func(idx int, e *entry.Entry) {
			defer wg.Done()
			defer func() { <-sem }() // release slot
			defer func() {
				if r := recover(); r != nil {
					results[idx] = decided{
						decision: selection.Exclude,
						err: &selection.EvaluationError{
							DN:    e.DN,
							Stage: selection.StageIdentity,
							Err:   fmt.Errorf("panic during evaluation: %v", r),
						},
					}
				}
			}()

			d, err := p.Decide(e)
			results[idx] = decided{decision: d, err: err}
		}(i, e)
	}

	wg.Wait()
}
