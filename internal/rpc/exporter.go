package rpc

import "github.com/aretw0/tether/pkg/ports"

// callHook identifies the capability an export's method calls dispatch
// against: the session's root target, or a secondary target registered via
// ExportTarget. The key gives re-export parity — the same hook devalues to
// the same export ID every time.
type callHook struct {
	key    int // 0 is the root target
	target ports.Target
}

// exportEntry tracks one row of the export table: either a pending
// operation awaiting lazy evaluation, a computed result, a failed
// operation, or a bare capability/promise placeholder.
type exportEntry struct {
	remoteRefcount int
	localRefcount  int

	hasResult bool
	result    any

	failure *protocolError

	hasOperation bool
	method       string
	args         any

	hook *callHook

	// Peer capability IDs referenced by this entry's arguments or remap
	// captures. Each is released back to the peer once the entry's result
	// has been pulled.
	importedClientIDs map[int]int
}

func (e *exportEntry) cacheResult(v any) {
	e.hasResult = true
	e.result = v
	e.hasOperation = false
	e.method = ""
	e.args = nil
}

func (e *exportEntry) fail(err error) {
	if pe, ok := err.(*protocolError); ok {
		e.failure = pe
	} else {
		e.failure = methodErrorf("%s", err.Error())
	}
	e.hasOperation = false
	e.method = ""
	e.args = nil
}

func (e *exportEntry) recordPeerID(id int) {
	if e.importedClientIDs == nil {
		e.importedClientIDs = make(map[int]int)
	}
	e.importedClientIDs[id]++
}

// exporter owns the export table. Positive IDs follow peer push order;
// negative IDs are minted for capabilities and promises we return.
type exporter struct {
	table           map[int]*exportEntry
	nextExportID    int
	nextNegExportID int
}

func newExporter() *exporter {
	return &exporter{
		table:           make(map[int]*exportEntry),
		nextExportID:    1,
		nextNegExportID: -1,
	}
}

func (x *exporter) allocateForPush() int {
	id := x.nextExportID
	x.nextExportID++
	return id
}

func (x *exporter) allocateNegative() int {
	id := x.nextNegExportID
	x.nextNegExportID--
	return id
}

func (x *exporter) find(id int) *exportEntry {
	return x.table[id]
}

func (x *exporter) put(id int, e *exportEntry) {
	x.table[id] = e
}

// release decrements the remote refcount and reports whether the entry was
// removed. Unknown IDs report false without side effects.
func (x *exporter) release(id, count int) bool {
	e, ok := x.table[id]
	if !ok {
		return false
	}
	if count > 0 {
		e.remoteRefcount -= count
	}
	if e.remoteRefcount <= 0 {
		delete(x.table, id)
		return true
	}
	return false
}

func (x *exporter) remove(id int) {
	delete(x.table, id)
}

func (x *exporter) size() int {
	return len(x.table)
}

func (x *exporter) reset() {
	x.table = make(map[int]*exportEntry)
	x.nextExportID = 1
	x.nextNegExportID = -1
}
