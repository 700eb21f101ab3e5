package plugins

import "fmt"

// Library is a loaded module binary. Close unloads it; a closed library
// must not be used again.
type Library interface {
	Path() string
	Lookup(symbol string) (any, error)
	Close() error
}

// Opener loads libraries. A path without a directory component is resolved
// by the opener against its own search path.
type Opener interface {
	Open(path string) (Library, error)
}

// entryPoint resolves the well-known entry symbol of lib
func entryPoint(lib Library) (EntryFunc, error) {
	sym, err := lib.Lookup(EntrySymbol)
	if err != nil {
		return nil, err
	}

	switch fn := sym.(type) {
	case func(*Descriptor):
		if fn != nil {
			return fn, nil
		}
	case EntryFunc:
		if fn != nil {
			return fn, nil
		}
	case *func(*Descriptor):
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	case *EntryFunc:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	default:
		return nil, fmt.Errorf("symbol has unexpected type %T", sym)
	}
	return nil, fmt.Errorf("symbol is nil")
}
