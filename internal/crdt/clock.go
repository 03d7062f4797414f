package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// LamportClock представляет логические часы Лампорта для упорядочивания правок
// в распределенной системе без синхронизации физического времени.
type LamportClock struct {
	actorID string     // уникальный идентификатор реплики
	counter int64      // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewLamportClock создает новый экземпляр логических часов Лампорта
// с уникальным идентификатором реплики (UUID).
func NewLamportClock() *LamportClock {
	return &LamportClock{
		counter: 0,
		actorID: uuid.New().String(),
	}
}

// NewLamportClockWithActorID создает новый экземпляр логических часов Лампорта
// с заданным идентификатором реплики. Используется при создании документа
// и для восстановления состояния.
func NewLamportClockWithActorID(actorID string) *LamportClock {
	return &LamportClock{
		counter: 0,
		actorID: actorID,
	}
}

// Tick увеличивает счетчик и возвращает новое значение timestamp.
// Используется при создании новой локальной правки.
func (lc *LamportClock) Tick() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Update обновляет счетчик на основе полученного удаленного timestamp.
// Используется при применении правки от другой реплики.
// Согласно алгоритму Лампорта: counter = max(local_counter, remote_timestamp)
func (lc *LamportClock) Update(remoteTimestamp int64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remoteTimestamp > lc.counter {
		lc.counter = remoteTimestamp
	}
}

// Timestamp возвращает текущее значение счетчика без его изменения.
func (lc *LamportClock) Timestamp() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// ActorID возвращает уникальный идентификатор реплики.
func (lc *LamportClock) ActorID() string {
	return lc.actorID
}

// SetTimestamp устанавливает счетчик в заданное значение.
// Используется при десериализации документа.
func (lc *LamportClock) SetTimestamp(timestamp int64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter = timestamp
}
