package app

import (
	"context"
	"strconv"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/domain/metrics"
	"batteryflow/domain/stage"
)

// BatteryPipeline binds the pipeline steps to the tasks of the battery DAG
type BatteryPipeline struct {
	Loader       *Loader
	Sampler      *Sampler
	Preprocessor *Preprocessor
	ZScore       *ZScoreFilter
	Isolation    *IsolationFilter
	Trainer      *Trainer
	Features     dataset.FeatureSet
}

// Tasks returns the task functions keyed by the ids of stage.BatteryPipelinePlan
func (p *BatteryPipeline) Tasks() map[core.TaskID]TaskFunc {
	features := p.Features
	if len(features) == 0 {
		features = dataset.BatteryFeatures
	}

	return map[core.TaskID]TaskFunc{
		stage.TaskLoadData: func(ctx context.Context, s *RunState) (map[string]string, error) {
			df, err := p.Loader.Load(ctx, s.Params.InputPath)
			if err != nil {
				return nil, err
			}
			s.Put(KeyFull, df)
			return rowsOutput(df), nil
		},

		stage.TaskStratifiedSample: func(ctx context.Context, s *RunState) (map[string]string, error) {
			df, err := s.Frame(KeyFull)
			if err != nil {
				return nil, err
			}
			size := s.Params.SampleSize
			if size == 0 {
				size = DefaultSampleSize
			}
			sampler := p.Sampler
			if s.Params.Seed != 0 {
				sampler = sampler.WithSeed(s.Params.Seed)
			}
			sample, err := sampler.Sample(ctx, df, size)
			if err != nil {
				return nil, err
			}
			s.Put(KeySample, sample)
			return rowsOutput(sample), nil
		},

		stage.TaskPreprocessing: func(ctx context.Context, s *RunState) (map[string]string, error) {
			df, err := s.Frame(KeyFull)
			if err != nil {
				return nil, err
			}
			sample, err := s.Frame(KeySample)
			if err != nil {
				return nil, err
			}
			return nil, p.Preprocessor.Run(ctx, df, sample)
		},

		stage.TaskRemoveOutliersZ: func(ctx context.Context, s *RunState) (map[string]string, error) {
			sample, err := s.Frame(KeySample)
			if err != nil {
				return nil, err
			}
			cleaned, report, err := p.ZScore.Filter(sample, features)
			if err != nil {
				return nil, err
			}
			s.Put(KeyZClean, cleaned)
			s.AddReport(report)
			return reportOutput(report), nil
		},

		stage.TaskIsolationForest: func(ctx context.Context, s *RunState) (map[string]string, error) {
			cleaned, err := s.Frame(KeyZClean)
			if err != nil {
				return nil, err
			}
			final, report, err := p.Isolation.Filter(ctx, cleaned, features)
			if err != nil {
				return nil, err
			}
			s.Put(KeyCleaned, final)
			s.AddReport(report)
			return reportOutput(report), nil
		},

		stage.TaskTrainRawData:     p.trainTask(KeySample, metrics.LabelRaw),
		stage.TaskTrainCleanedData: p.trainTask(KeyCleaned, metrics.LabelCleaned),
	}
}

func (p *BatteryPipeline) trainTask(key, label string) TaskFunc {
	return func(ctx context.Context, s *RunState) (map[string]string, error) {
		frame, err := s.Frame(key)
		if err != nil {
			return nil, err
		}
		records, err := p.Trainer.Train(ctx, frame, label)
		// Rows already appended to the ledger stay recorded on the manifest.
		s.AddRecords(records...)
		if err != nil {
			return nil, err
		}
		return map[string]string{"models": strconv.Itoa(len(records)), "dataset": label}, nil
	}
}

func rowsOutput(f *dataset.Frame) map[string]string {
	return map[string]string{"rows": strconv.Itoa(f.NumRows())}
}

func reportOutput(r FilterReport) map[string]string {
	out := map[string]string{
		"rows_in":  strconv.Itoa(r.RowsIn),
		"rows_out": strconv.Itoa(r.RowsOut),
	}
	if len(r.Degenerate) > 0 {
		out["degenerate"] = strconv.Itoa(len(r.Degenerate))
	}
	return out
}
