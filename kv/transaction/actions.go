package transaction

import (
	"sync"

	"github.com/pingcap-incubator/tinyds/kv/util/worker"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// DefaultMaxActions is the number of actions one transaction may carry.
const DefaultMaxActions = 5

// Action is a side effect deferred until its transaction commits, such as
// enqueueing a task.
type Action struct {
	Queue   string `json:"queue"`
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

// ActionDispatcher delivers committed actions. A delivery error drops the
// action; it never fails the commit.
type ActionDispatcher interface {
	Dispatch(app string, action *Action) error
}

// ActionHandler consumes the actions delivered through a TaskQueue.
type ActionHandler func(app string, action *Action)

type actionTask struct {
	app    string
	action *Action
}

// TaskQueue is an ActionDispatcher that hands actions to a handler on a
// worker goroutine, in commit order.
type TaskQueue struct {
	worker *worker.Worker
	wg     sync.WaitGroup
}

// NewTaskQueue starts a queue holding up to capacity undelivered actions.
func NewTaskQueue(capacity int, handler ActionHandler) *TaskQueue {
	q := &TaskQueue{}
	q.worker = worker.NewWorker("action-queue", capacity, &q.wg)
	q.worker.Start(worker.HandlerFunc(func(t worker.Task) {
		task := t.(actionTask)
		handler(task.app, task.action)
	}))
	return q
}

func (q *TaskQueue) Dispatch(app string, action *Action) error {
	if !q.worker.TrySend(actionTask{app: app, action: action}) {
		return errors.Errorf("action queue is full, dropping %s/%s", action.Queue, action.Name)
	}
	return nil
}

// Stop delivers the queued actions and waits for the worker to exit.
func (q *TaskQueue) Stop() {
	q.worker.Stop()
	q.wg.Wait()
}

// LogActionHandler only logs what it receives. It stands in when no task
// queue service is configured.
func LogActionHandler(app string, action *Action) {
	log.Info("transactional action delivered",
		zap.String("app", app), zap.String("queue", action.Queue),
		zap.String("name", action.Name), zap.Int("payload-size", len(action.Payload)))
}
