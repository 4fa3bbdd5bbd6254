package tiling

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RenderStats summarises one Render call.
type RenderStats struct {
	TileCount    int           `json:"tile_count"`
	BatchCount   int           `json:"batch_count"`
	StepCount    int           `json:"step_count"`
	PaddingSteps int           `json:"padding_steps"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// schedulerState tracks where the render loop is within a batch.
type schedulerState int

const (
	stateFilling schedulerState = iota
	stateSubmitting
	stateDraining
	stateDone
)

func (s schedulerState) String() string {
	switch s {
	case stateFilling:
		return "filling"
	case stateSubmitting:
		return "submitting"
	case stateDraining:
		return "draining"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// accumulator sums the reversed variants of the tile currently under TTA.
type accumulator struct {
	sum   *Buffer
	tile  int
	count int
}

// schedule walks every step of the plan, packing slots and draining each
// full batch into canvas.
func (s *Session) schedule(input, canvas *Buffer, plan *Plan) (*RenderStats, error) {
	steps := s.cfg.StepsPerTile()
	batch := s.cfg.BatchSize
	realSteps := plan.TileCount() * steps
	batchCount := (realSteps + batch - 1) / batch

	stats := &RenderStats{
		TileCount:    plan.TileCount(),
		BatchCount:   batchCount,
		StepCount:    batchCount * batch,
		PaddingSteps: batchCount*batch - realSteps,
	}
	log := s.log.WithFields(logrus.Fields{
		"input":   fmt.Sprintf("%dx%d", plan.Input.W, plan.Input.H),
		"output":  fmt.Sprintf("%dx%d", plan.Output.W, plan.Output.H),
		"tiles":   stats.TileCount,
		"batches": batchCount,
	})
	log.Debug("Render started")

	s.queue.Reset()
	s.acc.tile, s.acc.count = -1, 0
	state := stateFilling
	transition := func(next schedulerState, b int) {
		log.WithField("batch", b+1).Tracef("Scheduler %s -> %s", state, next)
		state = next
	}

	start := time.Now()
	batchStart := start
	for step := 0; step < stats.StepCount; step++ {
		slot := step % batch
		b := step / batch
		if state != stateFilling {
			transition(stateFilling, b)
		}

		if step < realSteps {
			tile, aug := step/steps, Augmentation(step%steps)
			if err := s.fill(s.slots[slot], input, plan.InputRects[tile], aug); err != nil {
				return nil, fmt.Errorf("tile %d (%s): %w", tile, aug, err)
			}
			if err := s.queue.Push(PendingStep{Tile: tile, Augmentation: aug}); err != nil {
				return nil, err
			}
		} else {
			s.slots[slot].Zero()
			if err := s.queue.Push(PendingStep{Padding: true}); err != nil {
				return nil, err
			}
		}

		if slot != batch-1 {
			continue
		}

		transition(stateSubmitting, b)
		if err := checkBatch(s.slots, s.cfg.InputTile, batch); err != nil {
			return nil, fmt.Errorf("%w: batch %d/%d: %w", ErrConfigurationMismatch, b+1, batchCount, err)
		}
		outputs, err := s.backend.RunBatch(s.slots)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d/%d: %w", ErrInferenceFailure, b+1, batchCount, err)
		}
		if err := checkBatch(outputs, s.cfg.OutputTile, batch); err != nil {
			return nil, fmt.Errorf("%w: batch %d/%d returned bad output: %w", ErrInferenceFailure, b+1, batchCount, err)
		}

		transition(stateDraining, b)
		if err := s.drain(outputs, canvas, plan); err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", b+1, batchCount, err)
		}

		elapsed := time.Since(batchStart)
		log.Infof("Rendered batch %d/%d @ %.2f it/s", b+1, batchCount, 1/elapsed.Seconds())
		batchStart = time.Now()
	}
	transition(stateDone, batchCount-1)

	stats.Elapsed = time.Since(start)
	log.WithField("elapsed", stats.Elapsed.String()).Debug("Render finished")
	return stats, nil
}

// fill samples rect from input and writes its aug variant into slot.
func (s *Session) fill(slot, input *Buffer, rect Rect, aug Augmentation) error {
	if aug == Identity {
		return ExtractInto(slot, input, rect)
	}
	if err := ExtractInto(s.sample, input, rect); err != nil {
		return err
	}
	fitInto(slot, aug.Apply(s.sample))
	return nil
}

// drain pops one queue entry per output slot and feeds the result to the
// accumulator. A padding entry ends the batch; everything after it is
// padding too and is discarded.
func (s *Session) drain(outputs []*Buffer, canvas *Buffer, plan *Plan) error {
	for i := range outputs {
		st, err := s.queue.Pop()
		if err != nil {
			return err
		}
		if st.Padding {
			s.queue.Reset()
			return nil
		}
		if err := s.accumulate(st, outputs[i], canvas, plan); err != nil {
			return err
		}
	}
	if s.queue.Len() != 0 {
		return fmt.Errorf("%d pending steps left after drain", s.queue.Len())
	}
	return nil
}

// accumulate adds one step's output. Without TTA the output is final. With
// TTA, variant 0 starts the sum, variants 1..7 are reversed and added, and
// the last variant divides by eight before the tile is committed.
func (s *Session) accumulate(st PendingStep, out *Buffer, canvas *Buffer, plan *Plan) error {
	if !s.cfg.TTA {
		s.result.CopyFrom(out)
		s.commit(st.Tile, canvas, plan)
		return nil
	}

	if st.Augmentation == Identity {
		s.acc.sum.CopyFrom(out)
		s.acc.tile, s.acc.count = st.Tile, 1
		return nil
	}
	if s.acc.tile != st.Tile || s.acc.count != int(st.Augmentation) {
		return fmt.Errorf("step (%d, %s) arrived while accumulating tile %d after %d variants",
			st.Tile, st.Augmentation, s.acc.tile, s.acc.count)
	}
	fitInto(s.reversed, st.Augmentation.Reverse(out))
	s.acc.sum.Add(s.reversed)
	s.acc.count++

	if s.acc.count == TTASize {
		s.acc.sum.Scale(1.0 / TTASize)
		s.result.CopyFrom(s.acc.sum)
		s.commit(st.Tile, canvas, plan)
		s.acc.tile, s.acc.count = -1, 0
	}
	return nil
}

// commit blends the finished tile in s.result and adds it to the canvas.
func (s *Session) commit(tile int, canvas *Buffer, plan *Plan) {
	rect := plan.OutputRects[tile]
	if s.cfg.Overlapping() {
		s.weights.Apply(s.result, rect, plan.Output)
	}
	canvas.AddRegion(s.result, rect)
}
