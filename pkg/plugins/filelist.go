package plugins

import "sort"

// FileList receives the entries a module's List handler produces
type FileList interface {
	AddFile(name string, size uint64)
	AddDirectory(name string)
}

// Entry is a single directory entry
type Entry struct {
	Name  string `json:"name"`
	Size  uint64 `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// Entries collects directory entries in the order they are added
type Entries []Entry

func (e *Entries) AddFile(name string, size uint64) {
	*e = append(*e, Entry{Name: name, Size: size})
}

func (e *Entries) AddDirectory(name string) {
	*e = append(*e, Entry{Name: name, IsDir: true})
}

// Sorted returns a copy ordered with directories first, then by name
func (e Entries) Sorted() Entries {
	out := make(Entries, len(e))
	copy(out, e)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find returns the entry with the given name
func (e Entries) Find(name string) (Entry, bool) {
	for _, entry := range e {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}
