package worker

import (
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

type TaskStop struct{}

type Task interface{}

// Worker runs a TaskHandler on its own goroutine, feeding it the tasks sent
// through a buffered channel in FIFO order.
type Worker struct {
	name     string
	sender   chan<- Task
	receiver <-chan Task
	wg       *sync.WaitGroup
}

type TaskHandler interface {
	Handle(t Task)
}

// HandlerFunc adapts a plain function to TaskHandler.
type HandlerFunc func(t Task)

func (f HandlerFunc) Handle(t Task) { f(t) }

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for t := range w.receiver {
			if _, ok := t.(TaskStop); ok {
				log.Debug("worker stopped", zap.String("name", w.name))
				return
			}
			handler.Handle(t)
		}
	}()
}

// TrySend queues t without blocking. It returns false if the queue is full.
func (w *Worker) TrySend(t Task) bool {
	select {
	case w.sender <- t:
		return true
	default:
		return false
	}
}

// Stop asks the worker to exit once every task queued before it has been
// handled.
func (w *Worker) Stop() {
	w.sender <- TaskStop{}
}

const defaultWorkerCapacity = 128

// NewWorker creates a worker whose queue holds capacity tasks. A
// non-positive capacity uses the default.
func NewWorker(name string, capacity int, wg *sync.WaitGroup) *Worker {
	if capacity <= 0 {
		capacity = defaultWorkerCapacity
	}
	ch := make(chan Task, capacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}
