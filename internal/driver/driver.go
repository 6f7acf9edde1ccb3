// Package driver wires the producer to the consumer.
package driver

import (
	"context"
	"fmt"
	"io"
	"runtime/trace"

	"github.com/Heman10x-NGU/dangleref/internal/triple"
)

// Trace annotations emitted by Run. They cost nothing unless runtime/trace is
// active.
const (
	TaskSpecimen  = "specimen"
	RegionProduce = "produce"
	RegionConsume = "consume"
)

// Regions lists the regions Run enters, in order.
var Regions = []string{RegionProduce, RegionConsume}

// Run acquires the producer's result for strategy and passes it unchanged to
// the consumer, which writes it to w.
func Run(ctx context.Context, w io.Writer, strategy triple.Strategy) error {
	ctx, task := trace.NewTask(ctx, TaskSpecimen)
	defer task.End()

	var (
		h   triple.Handoff
		err error
	)
	trace.WithRegion(ctx, RegionProduce, func() {
		h, err = strategy.Handoff()
	})
	if err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	trace.Logf(ctx, "strategy", "%s len=%d", strategy, h.Len())

	trace.WithRegion(ctx, RegionConsume, func() {
		err = h.Write(w)
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	return nil
}
