package ledger

// Undo entries are only kept while at least one snapshot is open, so a
// ledger used without snapshots does not grow a journal.

func (l *Ledger) record(undo func()) {
	if l.snapshots > 0 {
		l.journal = append(l.journal, undo)
	}
}

// Snapshot opens a revision and returns its id. Every snapshot must be
// closed by exactly one RevertToSnapshot or Release.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() int {
	l.snapshots++
	return len(l.journal)
}

// RevertToSnapshot undoes every change recorded since id and closes the
// snapshot.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	if id < len(l.journal) {
		l.journal = l.journal[:id]
	}
	l.closeLocked()
}

// Release keeps the changes made since id and closes the snapshot.
func (l *Ledger) Release(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Ledger) closeLocked() {
	if l.snapshots > 0 {
		l.snapshots--
	}
	if l.snapshots == 0 {
		l.journal = nil
	}
}
