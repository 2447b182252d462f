package identity

import (
	"fmt"
	"strings"

	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

// ConflictError reports a configuration that cannot coexist with the
// filters already defined: an exact duplicate filter or a name collision
// that escalation cannot resolve.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "configuration conflict: " + e.Reason
}

func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

// Slug derives the stable key a filter's state is exposed under. It is
// always fully qualified as stop_route_direction (with "all"
// placeholders) so it never changes as neighbouring filters come and go.
func Slug(def model.FilterDefinition) string {
	route := def.Route
	if route == "" {
		route = "all"
	}

	direction := def.Direction
	if direction == "" {
		direction = "all"
	}

	return strings.Join([]string{sanitize(def.StopID), sanitize(route), sanitize(direction)}, "_")
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	for _, r := range []string{":", " ", "/"} {
		s = strings.ReplaceAll(s, r, "_")
	}
	return s
}

// Resolve assigns every filter definition a globally unique identity,
// escalating name specificity only where needed. It is a pure function
// over the whole definition set and is recomputed wholesale on any
// configuration change; incremental patching invites stale-name bugs
// when definitions are removed out of order.
//
// Within one stop, names escalate in three tiers: the stop name alone,
// then "Route R" for route-constrained members once the stop is shared,
// then the direction for members that still collide on (stop, route).
// A custom name bypasses the tiers entirely but still must not collide
// with any other final name.
//
// The returned map is keyed by FilterDefinition.Key().
func Resolve(defs []model.FilterDefinition) (map[string]model.Identity, error) {
	byKey := map[string]model.FilterDefinition{}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byKey[def.Key()]; ok {
			return nil, &ConflictError{Reason: fmt.Sprintf("duplicate filter for stop %s (route %q, direction %q)", def.StopID, def.Route, def.Direction)}
		}
		byKey[def.Key()] = def
	}

	byStop := map[string][]model.FilterDefinition{}
	for _, def := range defs {
		byStop[def.StopID] = append(byStop[def.StopID], def)
	}

	identities := map[string]model.Identity{}
	finalNames := map[string]string{}

	for _, group := range byStop {
		escalateRoute := len(group) > 1

		routeCounts := map[string]int{}
		for _, def := range group {
			if def.Route != "" {
				routeCounts[strings.ToLower(def.Route)]++
			}
		}

		for _, def := range group {
			name := def.CustomName
			if name == "" {
				name = friendlyName(def, escalateRoute, routeCounts[strings.ToLower(def.Route)] > 1)
			}

			if holder, ok := finalNames[strings.ToLower(name)]; ok {
				return nil, &ConflictError{Reason: fmt.Sprintf("name %q already used by filter %s", name, holder)}
			}
			finalNames[strings.ToLower(name)] = def.Key()

			identities[def.Key()] = model.Identity{
				Slug:         Slug(def),
				FriendlyName: name,
				Def:          def,
			}
		}
	}

	// Custom names can collide across stops; the per-stop tiers cannot.
	// The finalNames map above already catches both.

	return identities, nil
}

func friendlyName(def model.FilterDefinition, escalateRoute bool, escalateDirection bool) string {
	base := def.StopName
	if base == "" {
		base = def.StopID
	}

	// Route-unconstrained members keep the base name; the wizard rejects
	// a second unconstrained filter on the same stop as a duplicate.
	if def.Route == "" || !escalateRoute {
		return base
	}

	name := base + " Route " + def.Route

	if escalateDirection && def.Direction != "" {
		name += " " + def.Direction
	}

	return name
}
