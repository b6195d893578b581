package bridge

import (
	"fmt"
	"sort"
	"strings"
)

// NamespaceClash is fatal for a whole Sync: two or more apps mapped to the
// same app-name. No catalog writes occur before this check runs.
type NamespaceClash struct {
	// Collisions maps an app-name to the (sorted) app ids that produced
	// it, for every app-name claimed by more than one app.
	Collisions map[string][]string
}

func (e *NamespaceClash) Error() string {
	names := make([]string, 0, len(e.Collisions))
	for name := range e.Collisions {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("namespace clash: multiple apps map to the same app-name: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s <- %s", name, strings.Join(e.Collisions[name], ", "))
	}
	return b.String()
}

// AmbiguousOwnership is fatal for processing of a single catalog service
// that carries more than one consular-app-id= tag; other services in the
// same purge pass continue to be processed.
type AmbiguousOwnership struct {
	ServiceID string
	Tags      []string
}

func (e *AmbiguousOwnership) Error() string {
	return fmt.Sprintf("service %s carries ambiguous ownership: app-id tags %s", e.ServiceID, strings.Join(e.Tags, ", "))
}
