package wizard

import (
	"context"
	"strings"

	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/identity"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

// State is the wizard's position in its linear flow. Each state gates
// entry to the next; a completed commit returns to StateStopSearch so
// further filters can be added without re-entering the credential.
type State int

const (
	StateCredential State = iota
	StateStopSearch
	StateFilterSelection
)

func (s State) String() string {
	switch s {
	case StateCredential:
		return "credential entry"
	case StateStopSearch:
		return "stop search"
	case StateFilterSelection:
		return "filter selection"
	default:
		return "unknown"
	}
}

var (
	ErrOutOfOrder   = errors.New("wizard step out of order")
	ErrNoStopsFound = errors.New("no stops match the search query")
)

type ConfigStore interface {
	SaveCredential(apiKey string) error
	LoadFilters() ([]model.FilterDefinition, error)
	SaveFilters(defs []model.FilterDefinition) error
}

// Wizard walks a user through producing one well-formed filter
// definition: validate a credential, resolve a free-text stop query to a
// concrete stop, collect optional constraints, then commit. Aborting at
// any point persists nothing beyond the verified credential.
type Wizard struct {
	Logger    *dlog.Logger
	Store     ConfigStore
	NewClient func(apiKey string) cumtd_client.CumtdClientInterface

	state      State
	client     cumtd_client.CumtdClientInterface
	candidates []model.Stop
	chosen     model.Stop
}

func New(logger *dlog.Logger, store ConfigStore, newClient func(apiKey string) cumtd_client.CumtdClientInterface) *Wizard {
	return &Wizard{
		Logger:    logger,
		Store:     store,
		NewClient: newClient,
		state:     StateCredential,
	}
}

func (w *Wizard) State() State {
	return w.state
}

// SubmitCredential verifies the API key against the upstream and stores
// it. An auth rejection leaves the wizard in the credential state for a
// re-prompt.
func (w *Wizard) SubmitCredential(ctx context.Context, apiKey string) error {
	w.Logger.Debug("SubmitCredential")

	if w.state != StateCredential {
		return errors.Wrapf(ErrOutOfOrder, "expected %s", w.state)
	}

	if strings.TrimSpace(apiKey) == "" {
		return errors.New("API key must not be empty")
	}

	client := w.NewClient(apiKey)
	if err := client.ValidateKey(ctx); err != nil {
		return errors.Wrap(err, "cannot validate API key")
	}

	if err := w.Store.SaveCredential(apiKey); err != nil {
		return err
	}

	w.client = client
	w.state = StateStopSearch

	return nil
}

// SearchStops resolves a free-text query to candidate stops. The wizard
// stays in the search state until ChooseStop picks one of them.
func (w *Wizard) SearchStops(ctx context.Context, query string) ([]model.Stop, error) {
	w.Logger.Debugf("SearchStops for `%s`", query)

	if w.state != StateStopSearch {
		return nil, errors.Wrapf(ErrOutOfOrder, "expected %s", w.state)
	}

	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query must not be empty")
	}

	stops, err := w.client.SearchStops(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "cannot search stops")
	}

	if len(stops) == 0 {
		return nil, ErrNoStopsFound
	}

	w.candidates = stops

	return stops, nil
}

func (w *Wizard) ChooseStop(stop model.Stop) error {
	w.Logger.Debugf("ChooseStop `%s`", stop.StopID)

	if w.state != StateStopSearch {
		return errors.Wrapf(ErrOutOfOrder, "expected %s", w.state)
	}

	for _, candidate := range w.candidates {
		if candidate.StopID == stop.StopID {
			w.chosen = candidate
			w.state = StateFilterSelection
			return nil
		}
	}

	return errors.Errorf("stop `%s` is not among the search candidates", stop.StopID)
}

// RouteOptions suggests route codes for the chosen stop. The lookup is
// advisory: a failure yields no suggestions, not a dead end.
func (w *Wizard) RouteOptions(ctx context.Context) []string {
	w.Logger.Debug("RouteOptions")

	if w.state != StateFilterSelection {
		return nil
	}

	routes, err := w.client.RoutesByStop(ctx, w.chosen.StopID)
	if err != nil {
		w.Logger.Debugf("cannot fetch routes for stop %s: %v", w.chosen.StopID, err)
		return nil
	}

	return routes
}

// DirectionOptions samples live departures for direction labels; like
// RouteOptions it is advisory only.
func (w *Wizard) DirectionOptions(ctx context.Context) []string {
	w.Logger.Debug("DirectionOptions")

	if w.state != StateFilterSelection {
		return nil
	}

	predictions, err := w.client.FetchDepartures(ctx, w.chosen.StopID)
	if err != nil {
		w.Logger.Debugf("cannot fetch departures for stop %s: %v", w.chosen.StopID, err)
		return nil
	}

	seen := map[string]bool{}
	directions := make([]string, 0)
	for _, p := range predictions {
		if p.Direction == "" || seen[p.Direction] {
			continue
		}
		seen[p.Direction] = true
		directions = append(directions, p.Direction)
	}

	return directions
}

// SubmitFilter commits one filter definition: it enforces the
// direction-requires-route invariant, rejects exact duplicates, re-runs
// the identity resolver over the full prospective set and persists only
// when every name is unique. On success the wizard returns to the stop
// search state, ready for another run.
func (w *Wizard) SubmitFilter(route string, direction string, customName string) (model.Identity, error) {
	w.Logger.Debug("SubmitFilter")

	if w.state != StateFilterSelection {
		return model.Identity{}, errors.Wrapf(ErrOutOfOrder, "expected %s", w.state)
	}

	def := model.FilterDefinition{
		StopID:     w.chosen.StopID,
		StopName:   w.chosen.StopName,
		Route:      strings.TrimSpace(route),
		Direction:  strings.TrimSpace(direction),
		CustomName: strings.TrimSpace(customName),
	}

	if err := def.Validate(); err != nil {
		return model.Identity{}, err
	}

	existing, err := w.Store.LoadFilters()
	if err != nil {
		return model.Identity{}, err
	}

	for _, other := range existing {
		if other.Key() == def.Key() {
			return model.Identity{}, &identity.ConflictError{Reason: "an identical filter already exists for this stop"}
		}
	}

	prospective := append(append([]model.FilterDefinition{}, existing...), def)

	identities, err := identity.Resolve(prospective)
	if err != nil {
		return model.Identity{}, err
	}

	if err := w.Store.SaveFilters(prospective); err != nil {
		return model.Identity{}, err
	}

	w.state = StateStopSearch
	w.candidates = nil
	w.chosen = model.Stop{}

	return identities[def.Key()], nil
}

// Abort discards any in-progress stop selection without persisting it.
func (w *Wizard) Abort() {
	w.Logger.Debug("Abort")

	w.candidates = nil
	w.chosen = model.Stop{}
	if w.state == StateFilterSelection {
		w.state = StateStopSearch
	}
}
