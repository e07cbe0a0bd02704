package store

import (
	"sync"

	"transit-realtime/internal/realtime"
)

// NoticeLog keeps the most recent notices and fans them out to listeners.
// Notify never blocks: a listener that falls behind misses notices.
type NoticeLog struct {
	mu        sync.Mutex
	size      int
	recent    []realtime.Notice
	listeners map[int]chan realtime.Notice
	nextID    int
}

func NewNoticeLog(size int) *NoticeLog {
	if size <= 0 {
		size = 50
	}
	return &NoticeLog{size: size, listeners: make(map[int]chan realtime.Notice)}
}

func (l *NoticeLog) Notify(n realtime.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, n)
	if len(l.recent) > l.size {
		l.recent = l.recent[len(l.recent)-l.size:]
	}
	for _, ch := range l.listeners {
		select {
		case ch <- n:
		default:
		}
	}
}

// Recent returns the retained notices, oldest first.
func (l *NoticeLog) Recent() []realtime.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]realtime.Notice, len(l.recent))
	copy(out, l.recent)
	return out
}

// Listen registers a listener. The returned func unregisters it and closes
// the channel.
func (l *NoticeLog) Listen(buffer int) (<-chan realtime.Notice, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan realtime.Notice, buffer)
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
