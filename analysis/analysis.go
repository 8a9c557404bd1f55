// Package analysis runs the grouping pass over a document in fixed-size
// batches, yielding between batches and reporting progress after each one.
package analysis

import (
	"context"
	"fmt"
	"runtime"

	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/merge"
	"github.com/minios-linux/tmxdedup/tmx"
)

// DefaultBatchSize is the number of units grouped between two yields.
const DefaultBatchSize = 100

// Progress is reported after every batch. Processed never decreases and
// reaches Total on the last batch.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Percent returns progress as a value in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Processed) * 100 / float64(p.Total)
}

// Options configures the driver.
type Options struct {
	// BatchSize is the number of units per batch. Zero means DefaultBatchSize.
	BatchSize int

	// OnProgress is called after each batch, on the driver's goroutine.
	OnProgress func(Progress)
}

func (o *Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

func (o *Options) progress(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

// Run groups and resolves every unit of doc. It checks ctx between batches
// and returns ctx.Err() when cancelled; partial work is discarded.
func Run(ctx context.Context, doc *tmx.Document, mopts merge.Options, opts Options) (*merge.Analysis, error) {
	if err := mopts.Validate(); err != nil {
		return nil, err
	}
	mopts, err := mopts.ResolveLanguages(doc)
	if err != nil {
		return nil, err
	}

	g := dedup.NewGrouper(mopts.Match, mopts.SourceLang, mopts.TargetLang)
	total := len(doc.Units)
	size := opts.batchSize()

	for start := 0; start < total; start += size {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+size, total)
		for i := start; i < end; i++ {
			g.Add(i, doc.Units[i])
		}
		opts.progress(Progress{Processed: end, Total: total})

		if end < total {
			runtime.Gosched()
		}
	}
	if total == 0 {
		opts.progress(Progress{})
	}

	return merge.Collect(g, mopts.Priority), nil
}

// ---------------------------------------------------------------------------
// Event stream
// ---------------------------------------------------------------------------

// EventKind tells which field of an Event is set.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is one message of the stream returned by Start.
type Event struct {
	Kind     EventKind
	Progress Progress
	// Analysis is set on EventComplete.
	Analysis *merge.Analysis
	// Err is set on EventError.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventProgress:
		return fmt.Sprintf("progress %d/%d", e.Progress.Processed, e.Progress.Total)
	case EventComplete:
		return fmt.Sprintf("complete: %d decisions", len(e.Analysis.Decisions))
	case EventError:
		return fmt.Sprintf("error: %v", e.Err)
	}
	return string(e.Kind)
}

// Start runs the driver on its own goroutine and streams progress events
// followed by exactly one complete or error event. The channel is closed
// after the final event. A caller that stops reading must cancel ctx so the
// goroutine can exit.
func Start(ctx context.Context, doc *tmx.Document, mopts merge.Options, opts Options) <-chan Event {
	events := make(chan Event)
	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(events)
		inner := opts
		inner.OnProgress = func(p Progress) {
			if opts.OnProgress != nil {
				opts.OnProgress(p)
			}
			send(Event{Kind: EventProgress, Progress: p})
		}
		res, err := Run(ctx, doc, mopts, inner)
		if err != nil {
			// The receiver may already be gone if ctx was cancelled.
			send(Event{Kind: EventError, Err: err})
			return
		}
		send(Event{Kind: EventComplete, Analysis: res})
	}()
	return events
}

// Wait drains events until the final one and returns its result.
func Wait(events <-chan Event) (*merge.Analysis, error) {
	var (
		res *merge.Analysis
		err error
	)
	for ev := range events {
		switch ev.Kind {
		case EventComplete:
			res = ev.Analysis
		case EventError:
			err = ev.Err
		}
	}
	if res == nil && err == nil {
		err = context.Canceled
	}
	return res, err
}
