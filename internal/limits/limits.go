// Package limits 提供单实例的按用户并发护栏，用于限制耗时的上游调用。
package limits

import "sync"

type UserLimits struct {
	max int

	mu       sync.Mutex
	inflight map[int64]int
}

// NewUserLimits 中 max <= 0 按 1 处理。
func NewUserLimits(max int) *UserLimits {
	if max <= 0 {
		max = 1
	}
	return &UserLimits{
		max:      max,
		inflight: make(map[int64]int),
	}
}

func (l *UserLimits) Acquire(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[userID] >= l.max {
		return false
	}
	l.inflight[userID]++
	return true
}

func (l *UserLimits) Release(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[userID] > 0 {
		l.inflight[userID]--
	}
	if l.inflight[userID] == 0 {
		delete(l.inflight, userID)
	}
}

func (l *UserLimits) Inflight(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[userID]
}
