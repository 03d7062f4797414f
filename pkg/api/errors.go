package api

import "fmt"

// StaleVersionError indicates that a commit's expected version no longer
// matches the server's current version: another replica committed first.
// The caller should pull the missing entries, reconcile and retry.
type StaleVersionError struct {
	CurrentVersion int64 // версия журнала на сервере в момент отказа
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale version: server is at %d", e.CurrentVersion)
}
