package api

// LogEntry представляет одну зафиксированную запись в журнале сервера.
// Записи неизменяемы после добавления; версии назначаются сервером
// строго монотонно, начиная с 1.
type LogEntry struct {
	CommitterID    string   `json:"committer_id"`    // CommitterID идентификатор реплики, зафиксировавшей запись
	IdempotencyKey string   `json:"idempotency_key"` // IdempotencyKey ключ дедупликации повторных commit
	ChangeSet      []byte   `json:"change_set"`      // ChangeSet сериализованный набор изменений документа
	TouchedPaths   []string `json:"touched_paths"`   // TouchedPaths пути документа, затронутые этой записью
	Version        int64    `json:"version"`         // Version назначенная сервером версия записи
}

// CommitRequest представляет запрос на фиксацию набора изменений.
type CommitRequest struct {
	CommitterID     string   `json:"committer_id"`
	IdempotencyKey  string   `json:"idempotency_key"`
	ChangeSet       []byte   `json:"change_set"`
	TouchedPaths    []string `json:"touched_paths"`
	ExpectedVersion int64    `json:"expected_version"` // ExpectedVersion версия, которую клиент считает текущей
}
