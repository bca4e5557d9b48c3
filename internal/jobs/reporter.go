package jobs

import (
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
)

// BusReporter publishes job events on the event bus.
type BusReporter struct {
	Bus *events.Bus
}

func (r BusReporter) Progress(id uint64, kind Kind, step, total int) {
	r.Bus.Publish(events.JobProgressEvent{
		JobID:     id,
		Kind:      string(kind),
		Step:      step,
		Total:     total,
		Timestamp: events.Now(),
	})
}

func (r BusReporter) Log(id uint64, kind Kind, msg string) {
	r.Bus.Publish(events.JobLogEvent{
		JobID:     id,
		Kind:      string(kind),
		Message:   msg,
		Timestamp: events.Now(),
	})
}

func (r BusReporter) Finished(res Result) {
	elapsed := res.Elapsed.Seconds()
	switch res.Outcome {
	case OutcomeCompleted:
		r.Bus.Publish(events.JobCompletedEvent{
			JobID: res.ID, Kind: string(res.Kind), Target: res.Target,
			Elapsed: elapsed, Timestamp: events.Now(),
		})
	case OutcomeAborted:
		r.Bus.Publish(events.JobAbortedEvent{
			JobID: res.ID, Kind: string(res.Kind), Target: res.Target,
			Elapsed: elapsed, Timestamp: events.Now(),
		})
	default:
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		r.Bus.Publish(events.JobFailedEvent{
			JobID: res.ID, Kind: string(res.Kind), Target: res.Target,
			Error: msg, Elapsed: elapsed, Timestamp: events.Now(),
		})
	}
}
