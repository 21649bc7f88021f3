package engine

import "sync"

// FollowerLocks - набор мьютексов, по одному на фолловера.
// Все операции исполнения и закрытия для одного фолловера
// сериализуются: два эпизода одного фолловера не идут параллельно.
type FollowerLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewFollowerLocks создаёт пустой набор
func NewFollowerLocks() *FollowerLocks {
	return &FollowerLocks{
		locks: make(map[int]*sync.Mutex),
	}
}

// Lock захватывает мьютекс фолловера, создавая его при первом обращении
func (fl *FollowerLocks) Lock(followerID int) {
	fl.get(followerID).Lock()
}

// Unlock освобождает мьютекс фолловера
func (fl *FollowerLocks) Unlock(followerID int) {
	fl.get(followerID).Unlock()
}

// TryLock пытается захватить мьютекс без блокировки
func (fl *FollowerLocks) TryLock(followerID int) bool {
	return fl.get(followerID).TryLock()
}

func (fl *FollowerLocks) get(followerID int) *sync.Mutex {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	m, ok := fl.locks[followerID]
	if !ok {
		m = &sync.Mutex{}
		fl.locks[followerID] = m
	}
	return m
}
