package dummy

import (
	"context"
	"time"

	"github.com/spf13/cast"

	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/task"
)

// Summary is the result of a sampling run.
type Summary struct {
	Samples   int     `json:"samples"`
	MeanPower float64 `json:"meanPower"`
}

// SampleTask takes count readings from the named monitor, interval apart.
// Interrupting the run stops it before the next reading.
func SampleTask(name, monitor string) task.Spec {
	return task.Spec{
		Name: name,
		New:  func() task.Task { return task.Func(sample) },
		Connectors: []module.Connector{
			{Name: "monitor", Interface: MonitorIface},
		},
		Connect:  map[string]string{"monitor": monitor},
		Defaults: map[string]any{"count": 10, "interval": "100ms"},
	}
}

func sample(ctx context.Context, env *task.Env, kwargs map[string]any) (any, error) {
	count, err := cast.ToIntE(kwargs["count"])
	if err != nil {
		return nil, err
	}
	interval, err := cast.ToDurationE(kwargs["interval"])
	if err != nil {
		return nil, err
	}
	mon, err := task.Connect[Sampler](env, "monitor")
	if err != nil {
		return nil, err
	}

	var sum Summary
	var total float64
	for i := 0; i < count; i++ {
		if err := env.Token.Err(); err != nil {
			return summarize(sum, total), err
		}
		r, err := mon.Sample(ctx)
		if err != nil {
			return summarize(sum, total), err
		}
		sum.Samples++
		total += r.Power
		if i == count-1 || interval <= 0 {
			continue
		}
		select {
		case <-env.Token.Done():
		case <-time.After(interval):
		}
	}
	env.Logger.Info("sampling done", "samples", sum.Samples)
	return summarize(sum, total), nil
}

func summarize(s Summary, total float64) Summary {
	if s.Samples > 0 {
		s.MeanPower = total / float64(s.Samples)
	}
	return s
}
