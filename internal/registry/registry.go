// Package registry maps step names and aliases onto the canonical step
// catalog and resolves a user-requested subset.
//
// The catalog is a fixed ordered list baked in at build time. Each step has
// a canonical dotted/numbered identifier and zero or more human-friendly
// aliases; underscore-separated variants of canonical identifiers are also
// accepted ("step2_5" resolves to "step2.5").
//
// Key functions:
//   - [Catalog] - the fixed ordered catalog
//   - [Resolve] - requested names to a [Selection]
//   - [KnownNames] - display list for error reporting
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for selection.
var (
	// ErrNoneResolved indicates every requested name was unknown. This is
	// fatal before any step runs; callers report it together with
	// [KnownNames].
	ErrNoneResolved = errors.New("no requested step names resolved")
)

// Step is one entry of the canonical catalog.
type Step struct {
	// ID is the canonical dotted/numbered identifier, e.g. "step2.5".
	ID string

	// Title is the human-readable step description.
	Title string

	// Aliases are additional accepted names, each mapping to exactly
	// this step.
	Aliases []string
}

// Selection is the resolved ordered list of canonical step IDs to execute.
// An empty request resolves to the full catalog, never to an empty
// Selection.
type Selection []string

// Catalog returns the fixed ordered step catalog.
func Catalog() []Step {
	return []Step{
		{ID: "step1", Title: "Prune old dumps", Aliases: []string{"prune", "delete-dumps"}},
		{ID: "step2", Title: "Reformat sources", Aliases: []string{"reformat", "format"}},
		{ID: "step2.5", Title: "Run test suite", Aliases: []string{"tests", "test"}},
		{ID: "step3", Title: "Clean caches", Aliases: []string{"clean", "clean-caches"}},
		{ID: "step3.5", Title: "Security scan", Aliases: []string{"security", "scan"}},
		{ID: "step4", Title: "Back up project", Aliases: []string{"backup"}},
		{ID: "step5", Title: "Generate dumps", Aliases: []string{"dumps", "generate-dumps"}},
		{ID: "step6", Title: "Commit snapshot", Aliases: []string{"commit", "git-commit"}},
		{ID: "step7", Title: "Audit dependencies", Aliases: []string{"audit", "deps"}},
	}
}

// Title returns the display title for a canonical ID, or the ID itself when
// unknown.
func Title(catalog []Step, id string) string {
	for _, s := range catalog {
		if s.ID == id {
			return s.Title
		}
	}
	return id
}

// Resolve maps requested names onto canonical IDs.
//
// An empty request selects every catalog step in catalog order. Each name
// resolves independently; request order is preserved and repeats are kept,
// so a step requested twice runs twice. Names that resolve to nothing come
// back in invalid; when nothing at all resolved the returned error is
// [ErrNoneResolved].
func Resolve(requested []string, catalog []Step) (Selection, []string, error) {
	if len(requested) == 0 {
		all := make(Selection, 0, len(catalog))
		for _, s := range catalog {
			all = append(all, s.ID)
		}
		return all, nil, nil
	}

	byName := make(map[string]string)
	for _, s := range catalog {
		byName[s.ID] = s.ID
		for _, a := range s.Aliases {
			byName[a] = s.ID
		}
	}

	var (
		selection Selection
		invalid   []string
	)
	for _, name := range requested {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		id, ok := byName[key]
		if !ok {
			// Accept underscore-separated canonical variants.
			id, ok = byName[strings.ReplaceAll(key, "_", ".")]
		}
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		selection = append(selection, id)
	}

	if len(selection) == 0 {
		return nil, invalid, ErrNoneResolved
	}
	return selection, invalid, nil
}

// KnownNames renders the catalog with aliases for error and help output.
func KnownNames(catalog []Step) []string {
	names := make([]string, 0, len(catalog))
	for _, s := range catalog {
		if len(s.Aliases) == 0 {
			names = append(names, s.ID)
			continue
		}
		names = append(names, fmt.Sprintf("%s (%s)", s.ID, strings.Join(s.Aliases, ", ")))
	}
	return names
}
