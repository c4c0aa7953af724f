package app

import (
	"context"
	"fmt"
	"strconv"

	"batteryflow/ports"
)

// FormatParam renders a parameter value the way the tracking UI displays it
func FormatParam(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

// endRun closes a tracked run as FAILED when cause is set, FINISHED otherwise
func endRun(ctx context.Context, tracked ports.TrackedRun, cause error) error {
	status := ports.RunStatusFinished
	if cause != nil {
		status = ports.RunStatusFailed
	}
	// The run must be closed even when ctx was cancelled mid-step.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := tracked.End(ctx, status); err != nil {
		return fmt.Errorf("end run %s: %w", tracked.ID(), err)
	}
	return nil
}
