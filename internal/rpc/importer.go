package rpc

// importEntry tracks a call we initiated on the peer, awaiting its
// resolve or reject.
type importEntry struct {
	localRefcount  int
	remoteRefcount int
	hasResolution  bool
	resolution     any
}

// importer owns the import table. IDs are positive and allocated by us
// when initiating server-to-client calls.
type importer struct {
	table        map[int]*importEntry
	nextImportID int
}

func newImporter() *importer {
	return &importer{
		table:        make(map[int]*importEntry),
		nextImportID: 1,
	}
}

func (m *importer) allocate() int {
	id := m.nextImportID
	m.nextImportID++
	m.table[id] = &importEntry{localRefcount: 1, remoteRefcount: 1}
	return id
}

// recordResolution stores the peer's resolution, erases the entry, and
// returns how many remote references to release back to the peer.
func (m *importer) recordResolution(id int, resolution any) int {
	e, ok := m.table[id]
	if !ok {
		e = &importEntry{localRefcount: 1, remoteRefcount: 1}
	}
	e.hasResolution = true
	e.resolution = resolution
	count := e.remoteRefcount
	if count < 1 {
		count = 1
	}
	delete(m.table, id)
	return count
}

// releaseLocal handles a peer release that names one of our import IDs.
// Treated defensively: decrement and erase at zero.
func (m *importer) releaseLocal(id, count int) {
	e, ok := m.table[id]
	if !ok || count <= 0 {
		return
	}
	if e.localRefcount > 0 {
		e.localRefcount -= count
		if e.localRefcount <= 0 {
			delete(m.table, id)
		}
	}
}

// setRefcounts seeds an entry's counters; used by tests.
func (m *importer) setRefcounts(id, remote, local int) {
	e, ok := m.table[id]
	if !ok {
		e = &importEntry{}
		m.table[id] = e
	}
	e.remoteRefcount = remote
	e.localRefcount = local
}

func (m *importer) has(id int) bool {
	_, ok := m.table[id]
	return ok
}

func (m *importer) size() int {
	return len(m.table)
}

func (m *importer) reset() {
	m.table = make(map[int]*importEntry)
	m.nextImportID = 1
}
