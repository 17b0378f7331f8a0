package session

// Add merges an arriving item into the session's pending batch and
// reports whether the batch is complete.
//
// An empty groupKey means "no grouping": the item forms its own
// complete single-item batch and the caller proceeds straight to
// folder selection. A non-empty key appends to the open batch with
// the same key; a different key starts a fresh accumulation (batches
// never merge). Grouped batches are never ready here: they complete
// only on the user's explicit done signal, with no timeout, so a
// slow multi-file send is never truncated.
func Add(s *Session, item FileItem, groupKey string) (ready bool) {
	if groupKey == "" {
		s.Pending = []FileItem{item}
		s.GroupKey = ""
		return true
	}
	if len(s.Pending) == 0 || s.GroupKey != groupKey {
		s.Pending = []FileItem{item}
		s.GroupKey = groupKey
		return false
	}
	s.Pending = append(s.Pending, item)
	return false
}
