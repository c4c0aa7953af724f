package app

import (
	"context"
	"fmt"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/domain/stats"
	"batteryflow/internal"
	"batteryflow/ports"
)

// DefaultSampleSize is the number of rows drawn when no size is configured
const DefaultSampleSize = 50000

// Sampler draws a class-proportional subset of rows keyed on cycle_index
type Sampler struct {
	rng    ports.RNGPort
	seed   int64
	logger *internal.Logger
}

// NewSampler creates a sampler with a fixed seed
func NewSampler(rng ports.RNGPort, seed int64, logger *internal.Logger) *Sampler {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Sampler{rng: rng, seed: seed, logger: logger}
}

// WithSeed returns a sampler drawing with seed
func (s *Sampler) WithSeed(seed int64) *Sampler {
	cp := *s
	cp.seed = seed
	return &cp
}

// Sample returns size rows drawn by a single stratified shuffle split.
// Rows come back in the split's shuffled order.
func (s *Sampler) Sample(ctx context.Context, frame *dataset.Frame, size int) (*dataset.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := frame.NumRows()
	if size <= 0 {
		return nil, core.NewInvalidArgumentError("sample_size", fmt.Sprintf("%d must be positive", size))
	}
	if size >= n {
		return nil, core.NewInvalidArgumentError("sample_size", fmt.Sprintf("%d must be smaller than the %d available rows", size, n))
	}

	labels, err := frame.Ints(dataset.ColumnCycleIndex)
	if err != nil {
		return nil, err
	}

	rnd := s.rng.SeededStream("stratified_sample", s.seed)
	_, test, err := stats.StratifiedShuffleSplitN(labels, size, rnd)
	if err != nil {
		return nil, fmt.Errorf("stratified sample: %w", err)
	}

	sample, err := frame.Take(test)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("drew stratified sample", "rows_in", n, "rows_out", sample.NumRows(), "seed", s.seed)
	return sample, nil
}
