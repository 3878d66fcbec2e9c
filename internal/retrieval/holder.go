package retrieval

import (
	"sync/atomic"

	"github.com/bookquest-ai/bookquest/internal/lexical"
)

// IndexHolder publishes the active lexical index snapshot. Queries read
// whatever snapshot is current; a rebuild installs a whole new index with
// one atomic swap and never mutates the one readers already hold.
type IndexHolder struct {
	current atomic.Pointer[lexical.Index]
}

func NewIndexHolder() *IndexHolder {
	return &IndexHolder{}
}

// Get returns the current snapshot, or nil when no index has been
// installed yet.
func (h *IndexHolder) Get() *lexical.Index {
	return h.current.Load()
}

// Swap installs ix as the new snapshot. In-flight queries keep the
// snapshot they started with.
func (h *IndexHolder) Swap(ix *lexical.Index) {
	h.current.Store(ix)
}
