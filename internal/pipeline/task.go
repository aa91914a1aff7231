package pipeline

import (
	"context"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Task is a request running in the background.
type Task struct {
	progress <-chan int
	cancel   context.CancelFunc
	done     chan struct{}
	result   models.Result
}

// Submit starts req on its own goroutine. The task stops when ctx is done or Cancel is called.
func (p *Pipeline) Submit(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)

	// The tracker inside Run emits at most 101 distinct values, so sends never block.
	ch := make(chan int, 101)
	t := &Task{progress: ch, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer close(ch)
		t.result = p.Run(ctx, req, func(percent int) {
			select {
			case ch <- percent:
			default:
			}
		})
	}()
	return t
}

// Progress delivers progress percentages and is closed when the task ends.
func (t *Task) Progress() <-chan int { return t.progress }

// Cancel asks the task to stop at its next page or file boundary.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task has ended and its result is available.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task ends and returns its result.
func (t *Task) Wait() models.Result {
	<-t.done
	t.cancel()
	return t.result
}
