package analyzer

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// reorderQueue re-sequences records from coding order back to display
// order. Records enter keyed by display index and leave as soon as the
// run starting at the next expected index is contiguous.
type reorderQueue struct {
	next    int
	pending map[int]models.FrameRecord
}

func newReorderQueue() *reorderQueue {
	return &reorderQueue{pending: make(map[int]models.FrameRecord)}
}

// push files a record under its display index.
func (q *reorderQueue) push(rec models.FrameRecord) {
	q.pending[rec.FrameNum] = rec
}

// drain returns the contiguous run starting at the next expected
// display index, possibly empty.
func (q *reorderQueue) drain() []models.FrameRecord {
	var out []models.FrameRecord
	for {
		rec, ok := q.pending[q.next]
		if !ok {
			return out
		}
		delete(q.pending, q.next)
		q.next++
		out = append(out, rec)
	}
}

// flush returns every remaining record in display order, for the end
// of the stream.
func (q *reorderQueue) flush() []models.FrameRecord {
	if len(q.pending) == 0 {
		return nil
	}
	keys := make([]int, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]models.FrameRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, q.pending[k])
		delete(q.pending, k)
	}
	return out
}
