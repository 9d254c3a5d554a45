package engine

// TimeEntryName is the reserved entry carrying wall-clock time.
const TimeEntryName = "systemTime"

// EntryDescriptor describes a live entry between its Start and Finish
// records.
type EntryDescriptor struct {
	ID       uint32
	Name     string
	Type     EntryType
	TypeName string // declared type string, kept for diagnostics
	Metadata string
}

// IsTimeEntry reports whether the entry is the reserved time base entry.
func (d *EntryDescriptor) IsTimeEntry() bool {
	return d.Name == TimeEntryName && d.Type == TypeInt64
}

// Registry tracks live entries by ID. It is owned by a single processing
// loop and is not safe for concurrent use.
type Registry struct {
	entries map[uint32]*EntryDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uint32]*EntryDescriptor),
	}
}

// Start registers an entry, replacing any live entry with the same ID.
// Returns true if the ID was already live.
func (r *Registry) Start(desc EntryDescriptor) bool {
	_, duplicate := r.entries[desc.ID]
	r.entries[desc.ID] = &desc
	return duplicate
}

// Finish removes an entry. Returns false if the ID was not live.
func (r *Registry) Finish(id uint32) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// SetMetadata replaces the metadata of a live entry. Returns false if the ID
// was not live.
func (r *Registry) SetMetadata(id uint32, metadata string) bool {
	desc, ok := r.entries[id]
	if !ok {
		return false
	}
	desc.Metadata = metadata
	return true
}

// Lookup returns the descriptor of a live entry.
func (r *Registry) Lookup(id uint32) (*EntryDescriptor, bool) {
	desc, ok := r.entries[id]
	return desc, ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
