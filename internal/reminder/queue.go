package reminder

import "time"

// Key identifies one reminder: the occurrence id (event id for plain
// events, id_YYYYMMDD for recurring occurrences) and the offset in minutes.
type Key struct {
	InstanceID string `json:"instance_id"`
	Offset     int    `json:"offset"`
}

// Entry is an armed reminder.
type Entry struct {
	Key
	EventID  string    `json:"event_id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	FireAt   time.Time `json:"fire_at"`
}

// firedRecord remembers the occurrence start a key fired for.
type firedRecord struct {
	start    time.Time
	retireAt time.Time
}

// entryQueue is a min-heap on FireAt. Cancelled entries stay in the heap and
// are discarded when popped.
type entryQueue []*Entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].FireAt.Equal(q[j].FireAt) {
		return q[i].InstanceID < q[j].InstanceID
	}
	return q[i].FireAt.Before(q[j].FireAt)
}

func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *entryQueue) Push(x any) { *q = append(*q, x.(*Entry)) }

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
