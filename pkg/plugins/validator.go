package plugins

import (
	"fmt"
	"unicode/utf8"
)

// ValidateDescriptor checks a registration descriptor before any of its
// fields are trusted. It returns every problem found; markers are checked
// first and stop validation early.
func ValidateDescriptor(d *Descriptor) []ValidationError {
	if d == nil {
		return []ValidationError{{Field: "descriptor", Message: "descriptor is nil"}}
	}

	if d.Magic != DescriptorMagic {
		return []ValidationError{{
			Field:   "magic",
			Message: fmt.Sprintf("unrecognized magic %#x", d.Magic),
		}}
	}

	if d.Version < MinDescriptorVersion || d.Version > DescriptorVersion {
		return []ValidationError{{
			Field: "version",
			Message: fmt.Sprintf("unsupported version %d (supported %d-%d)",
				d.Version, MinDescriptorVersion, DescriptorVersion),
		}}
	}

	var errors []ValidationError

	if d.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "module name is required",
		})
	} else if n := utf8.RuneCountInString(d.Name); n > MaxNameLength {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("module name is %d characters, maximum is %d", n, MaxNameLength),
		})
	}

	if d.Handlers.List == nil {
		errors = append(errors, ValidationError{
			Field:   "handlers.list",
			Message: "list handler is required",
		})
	}

	if !d.Scope.Root && !d.Scope.Process {
		errors = append(errors, ValidationError{
			Field:   "scope",
			Message: "module must apply to the root or process namespace",
		})
	}

	return errors
}
