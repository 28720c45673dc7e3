package app

import (
	"context"
	"fmt"

	"github.com/shpitdev/pds-validator/internal/history"
	"github.com/shpitdev/pds-validator/internal/pipeline"
	"github.com/shpitdev/pds-validator/internal/sheet"
)

type workItem struct {
	row   int
	input pipeline.Input
	// cached is the prior validated outcome reused instead of searching again.
	cached *history.Entry
}

type runPlan struct {
	items       []workItem
	skippedRows int
	cachedRows  int
}

// buildPlan lists the rows to process in input order. Rows without a product
// name are left untouched.
func (r *Runner) buildPlan(ctx context.Context, t *sheet.Table, c columns, skipValidated bool) (runPlan, error) {
	var plan runPlan
	for i := range t.Rows {
		product := t.Cell(i, c.product)
		if product == "" {
			plan.skippedRows++
			continue
		}
		it := workItem{
			row:   i,
			input: pipeline.Input{Product: product, APIR: t.Cell(i, c.apir)},
		}
		if skipValidated && r.History != nil {
			prev, ok, err := r.History.LastValidated(ctx, it.input.Product, it.input.APIR)
			if err != nil {
				return runPlan{}, fmt.Errorf("incremental plan: %w", err)
			}
			if ok {
				it.cached = &prev
				plan.cachedRows++
			}
		}
		plan.items = append(plan.items, it)
	}
	return plan, nil
}
