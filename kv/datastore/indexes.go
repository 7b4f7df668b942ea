package datastore

import (
	"sync"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"go.uber.org/atomic"
)

// IndexSupplier lists the composite indexes an app declares, typically
// parsed from its index.yaml.
type IndexSupplier interface {
	ListCompositeIndexes(app string) ([]*model.CompositeIndex, error)
}

// indexRegistry holds the composite indexes of every app served by a
// store. Index ids are unique across apps.
type indexRegistry struct {
	nextID atomic.Int64

	mu    sync.RWMutex
	byApp map[string][]*model.CompositeIndex
}

func newIndexRegistry() *indexRegistry {
	return &indexRegistry{byApp: make(map[string][]*model.CompositeIndex)}
}

// find returns the position of the index with the same definition.
func (r *indexRegistry) find(index *model.CompositeIndex) int {
	for i, stored := range r.byApp[index.AppID] {
		if stored.SameDefinition(index) {
			return i
		}
	}
	return -1
}

func (r *indexRegistry) create(index *model.CompositeIndex) (int64, error) {
	if index.ID != 0 {
		return 0, model.BadRequestf("New index id must be 0.")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(index) >= 0 {
		return 0, model.BadRequestf("Index already exists.")
	}
	clone := index.Clone()
	clone.ID = r.nextID.Inc()
	if clone.State == 0 {
		clone.State = model.IndexWriteOnly
	}
	r.byApp[clone.AppID] = append(r.byApp[clone.AppID], clone)
	indexGauge.WithLabelValues(clone.AppID).Set(float64(len(r.byApp[clone.AppID])))
	return clone.ID, nil
}

func (r *indexRegistry) update(index *model.CompositeIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(index)
	if i < 0 {
		return model.BadRequestf("Index doesn't exist.")
	}
	stored := r.byApp[index.AppID][i]
	if !stored.State.CanTransition(index.State) {
		return model.BadRequestf("cannot move index state from %s to %s", stored.State, index.State)
	}
	stored.State = index.State
	return nil
}

func (r *indexRegistry) delete(index *model.CompositeIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(index)
	if i < 0 {
		return model.BadRequestf("Index doesn't exist.")
	}
	indexes := r.byApp[index.AppID]
	r.byApp[index.AppID] = append(indexes[:i:i], indexes[i+1:]...)
	indexGauge.WithLabelValues(index.AppID).Set(float64(len(r.byApp[index.AppID])))
	return nil
}

// list returns copies of the indexes of app in creation order.
func (r *indexRegistry) list(app string) []*model.CompositeIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	indexes := make([]*model.CompositeIndex, 0, len(r.byApp[app]))
	for _, index := range r.byApp[app] {
		indexes = append(indexes, index.Clone())
	}
	return indexes
}
