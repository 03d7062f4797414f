package client

import (
	"sort"
	"strings"

	"github.com/iudanet/docsync/internal/crdt"
)

// Policy reconciles locally-touched paths against the paths touched by
// intervening server commits. It runs after pulled entries have been
// applied to both replicas and before the pending diff is computed, and
// returns the revised touched-path set plus the paths it reverted.
type Policy interface {
	Name() string
	Reconcile(local, shadow *crdt.Doc, touched, remoteTouched map[string]struct{}) (revised map[string]struct{}, reverted []string)
}

// allowOverwrite is the merge-and-keep-both policy: no extra action, the
// engine's last-write-wins register merge decides field-level outcomes.
type allowOverwrite struct{}

// NewAllowOverwrite returns the allow-overwrite conflict policy.
func NewAllowOverwrite() Policy {
	return allowOverwrite{}
}

func (allowOverwrite) Name() string {
	return "allow-overwrite"
}

func (allowOverwrite) Reconcile(_, _ *crdt.Doc, touched, _ map[string]struct{}) (map[string]struct{}, []string) {
	return touched, nil
}

// firstWins is the strict first-committer-wins policy: local edits whose
// touched paths collide with paths touched by any intervening server
// commit are reverted to the server-accepted value before the outgoing
// change-set is computed.
type firstWins struct{}

// NewFirstWins returns the strict first-wins conflict policy.
func NewFirstWins() Policy {
	return firstWins{}
}

func (firstWins) Name() string {
	return "strict-first-wins"
}

func (firstWins) Reconcile(local, shadow *crdt.Doc, touched, remoteTouched map[string]struct{}) (map[string]struct{}, []string) {
	revised := cloneSet(touched)
	var reverted []string

	for path := range touched {
		if !conflicts(path, remoteTouched) {
			continue
		}

		// Перезаписываем локальное значение значением, принятым сервером.
		// Это локальная правка, но она намеренно не добавляется в touched.
		revertPath(local, shadow, path)
		delete(revised, path)
		reverted = append(reverted, path)
	}

	sort.Strings(reverted)
	return revised, reverted
}

// conflicts reports whether a locally-touched path collides with the
// remote touched set. Paths are compared by set intersection at recorded
// granularity, plus a prefix rule: a node-level path conflicts with any
// field path under the same node in either direction.
func conflicts(path string, remoteTouched map[string]struct{}) bool {
	if _, ok := remoteTouched[path]; ok {
		return true
	}

	node, _, isField := strings.Cut(path, ".")
	if isField {
		// Локальная правка поля против удаленной правки всего узла.
		_, ok := remoteTouched[node]
		return ok
	}

	// Локальная правка узла против удаленной правки любого его поля.
	prefix := path + "."
	for remote := range remoteTouched {
		if strings.HasPrefix(remote, prefix) {
			return true
		}
	}
	return false
}

// revertPath overwrites the value at path in the local replica with the
// value from the shadow replica (the server-accepted state).
func revertPath(local, shadow *crdt.Doc, path string) {
	node, field, isField := strings.Cut(path, ".")

	if isField {
		local.Update(func(tx *crdt.Tx) {
			if value, ok := shadow.Get(node, field); ok {
				tx.SetField(node, field, value)
			} else {
				tx.DeleteField(node, field)
			}
		})
		return
	}

	local.Update(func(tx *crdt.Tx) {
		if shadow.Has(node) {
			tx.PutNode(node, shadow.Fields(node))
		} else {
			tx.DeleteNode(node)
		}
	})
}
