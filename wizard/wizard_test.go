package wizard

import (
	"context"
	"io/ioutil"
	"testing"

	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/identity"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/mtd-tools/arrivals-service/test_helpers"
	"github.com/pkg/errors"
)

type fakeClient struct {
	validateErr error
	stops       []model.Stop
	routes      []string
	predictions []model.Prediction
	routesErr   error
}

func (c *fakeClient) ValidateKey(ctx context.Context) error {
	return c.validateErr
}

func (c *fakeClient) SearchStops(ctx context.Context, query string) ([]model.Stop, error) {
	return c.stops, nil
}

func (c *fakeClient) RoutesByStop(ctx context.Context, stopID string) ([]string, error) {
	return c.routes, c.routesErr
}

func (c *fakeClient) FetchDepartures(ctx context.Context, stopID string) ([]model.Prediction, error) {
	return c.predictions, nil
}

type fakeStore struct {
	credential  string
	filters     []model.FilterDefinition
	saveCount   int
	saveFailure error
}

func (s *fakeStore) SaveCredential(apiKey string) error {
	s.credential = apiKey
	return nil
}

func (s *fakeStore) LoadFilters() ([]model.FilterDefinition, error) {
	return s.filters, nil
}

func (s *fakeStore) SaveFilters(defs []model.FilterDefinition) error {
	if s.saveFailure != nil {
		return s.saveFailure
	}
	s.filters = defs
	s.saveCount++
	return nil
}

func newTestWizard(client *fakeClient, store *fakeStore) *Wizard {
	logger := dlog.NewLogger(dlog.LoggerSetOutput(ioutil.Discard))
	return New(logger, store, func(apiKey string) cumtd_client.CumtdClientInterface {
		return client
	})
}

// advance walks a fresh wizard to the filter selection state.
func advance(t *testing.T, w *Wizard, stop model.Stop) {
	t.Helper()

	ctx := context.Background()

	if err := w.SubmitCredential(ctx, "valid-key"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.SearchStops(ctx, stop.StopName); err != nil {
		t.Fatal(err)
	}
	if err := w.ChooseStop(stop); err != nil {
		t.Fatal(err)
	}
}

func TestWizard_SubmitCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("should store a verified key and advance to stop search", func(t *testing.T) {
		store := &fakeStore{}
		w := newTestWizard(&fakeClient{}, store)

		if err := w.SubmitCredential(ctx, "valid-key"); err != nil {
			t.Fatal(err)
		}

		test_helpers.AssertString(t, store.credential, "valid-key")
		if w.State() != StateStopSearch {
			t.Errorf("got state %s, want %s", w.State(), StateStopSearch)
		}
	})

	t.Run("should stay in the credential state when the key is rejected", func(t *testing.T) {
		store := &fakeStore{}
		w := newTestWizard(&fakeClient{validateErr: &cumtd_client.AuthError{Message: "invalid key"}}, store)

		err := w.SubmitCredential(ctx, "bad-key")
		if !cumtd_client.IsAuth(err) {
			t.Fatalf("got %v, want an auth failure", err)
		}

		test_helpers.AssertString(t, store.credential, "")
		if w.State() != StateCredential {
			t.Errorf("got state %s, want %s", w.State(), StateCredential)
		}

		// A corrected key on the same wizard must succeed.
		if err := w.SubmitCredential(ctx, "corrected-key"); err != nil {
			t.Fatal(err)
		}

		test_helpers.AssertString(t, store.credential, "corrected-key")
	})

	t.Run("should reject an empty key without calling upstream", func(t *testing.T) {
		w := newTestWizard(&fakeClient{}, &fakeStore{})

		if err := w.SubmitCredential(ctx, "   "); err == nil {
			t.Error("expected an error for a blank key")
		}
	})
}

func TestWizard_StateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse stop search before a credential is accepted", func(t *testing.T) {
		w := newTestWizard(&fakeClient{}, &fakeStore{})

		_, err := w.SearchStops(ctx, "Green")
		if errors.Cause(err) != ErrOutOfOrder {
			t.Errorf("got %v, want ErrOutOfOrder", err)
		}
	})

	t.Run("should refuse a filter before a stop is chosen", func(t *testing.T) {
		w := newTestWizard(&fakeClient{}, &fakeStore{})

		if err := w.SubmitCredential(ctx, "valid-key"); err != nil {
			t.Fatal(err)
		}

		_, err := w.SubmitFilter("5", "", "")
		if errors.Cause(err) != ErrOutOfOrder {
			t.Errorf("got %v, want ErrOutOfOrder", err)
		}
	})

	t.Run("should refuse choosing a stop that was never a candidate", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{{StopID: "SPFLDPINE", StopName: "Springfield and Pine"}}}
		w := newTestWizard(client, &fakeStore{})

		if err := w.SubmitCredential(ctx, "valid-key"); err != nil {
			t.Fatal(err)
		}
		if _, err := w.SearchStops(ctx, "Springfield"); err != nil {
			t.Fatal(err)
		}

		if err := w.ChooseStop(model.Stop{StopID: "ILLTERM"}); err == nil {
			t.Error("expected an error for an unknown candidate")
		}
	})
}

func TestWizard_SearchStops(t *testing.T) {
	ctx := context.Background()

	t.Run("should report a distinct error when nothing matches", func(t *testing.T) {
		w := newTestWizard(&fakeClient{}, &fakeStore{})

		if err := w.SubmitCredential(ctx, "valid-key"); err != nil {
			t.Fatal(err)
		}

		_, err := w.SearchStops(ctx, "nowhere")
		if err != ErrNoStopsFound {
			t.Errorf("got %v, want ErrNoStopsFound", err)
		}

		if w.State() != StateStopSearch {
			t.Errorf("got state %s, want %s", w.State(), StateStopSearch)
		}
	})
}

func TestWizard_SubmitFilter(t *testing.T) {
	stop := model.Stop{StopID: "SPFLDPINE", StopName: "Springfield and Pine"}

	t.Run("should persist the filter and return its resolved identity", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{stop}}
		store := &fakeStore{}
		w := newTestWizard(client, store)
		advance(t, w, stop)

		id, err := w.SubmitFilter("5", "", "")
		if err != nil {
			t.Fatal(err)
		}

		test_helpers.AssertString(t, id.Slug, "spfldpine_5_all")
		test_helpers.AssertString(t, id.FriendlyName, "Springfield and Pine")

		if len(store.filters) != 1 {
			t.Fatalf("got %d persisted filters, want 1", len(store.filters))
		}
		if w.State() != StateStopSearch {
			t.Errorf("got state %s, want %s", w.State(), StateStopSearch)
		}
	})

	t.Run("should escalate names when a second filter shares the stop", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{stop}}
		store := &fakeStore{filters: []model.FilterDefinition{
			{StopID: "SPFLDPINE", StopName: "Springfield and Pine", Route: "5"},
		}}
		w := newTestWizard(client, store)
		advance(t, w, stop)

		id, err := w.SubmitFilter("12", "", "")
		if err != nil {
			t.Fatal(err)
		}

		test_helpers.AssertString(t, id.FriendlyName, "Springfield and Pine Route 12")

		if len(store.filters) != 2 {
			t.Fatalf("got %d persisted filters, want 2", len(store.filters))
		}
	})

	t.Run("should enforce the direction-requires-route rule", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{stop}}
		store := &fakeStore{}
		w := newTestWizard(client, store)
		advance(t, w, stop)

		if _, err := w.SubmitFilter("", "West", ""); err == nil {
			t.Error("expected an error for a direction without a route")
		}

		if store.saveCount != 0 {
			t.Errorf("got %d saves, want 0", store.saveCount)
		}
	})

	t.Run("should reject an exact duplicate without persisting anything", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{stop}}
		store := &fakeStore{filters: []model.FilterDefinition{
			{StopID: "SPFLDPINE", StopName: "Springfield and Pine", Route: "5"},
		}}
		w := newTestWizard(client, store)
		advance(t, w, stop)

		_, err := w.SubmitFilter("5", "", "")
		if !identity.IsConflict(err) {
			t.Fatalf("got %v, want a conflict", err)
		}

		if store.saveCount != 0 {
			t.Errorf("got %d saves, want 0", store.saveCount)
		}
		if w.State() != StateFilterSelection {
			t.Errorf("got state %s, want %s", w.State(), StateFilterSelection)
		}
	})

	t.Run("should reject a custom name that collides with an existing name", func(t *testing.T) {
		client := &fakeClient{stops: []model.Stop{stop}}
		store := &fakeStore{filters: []model.FilterDefinition{
			{StopID: "ILLTERM", StopName: "Illinois Terminal"},
		}}
		w := newTestWizard(client, store)
		advance(t, w, stop)

		_, err := w.SubmitFilter("", "", "illinois terminal")
		if !identity.IsConflict(err) {
			t.Fatalf("got %v, want a conflict", err)
		}

		if store.saveCount != 0 {
			t.Errorf("got %d saves, want 0", store.saveCount)
		}
	})
}

func TestWizard_AdvisoryOptions(t *testing.T) {
	ctx := context.Background()
	stop := model.Stop{StopID: "SPFLDPINE", StopName: "Springfield and Pine"}

	t.Run("should suggest routes and directions for the chosen stop", func(t *testing.T) {
		client := &fakeClient{
			stops:  []model.Stop{stop},
			routes: []string{"5", "12"},
			predictions: []model.Prediction{
				{Route: "5", Direction: "West"},
				{Route: "5", Direction: "West"},
				{Route: "12", Direction: "East"},
				{Route: "12"},
			},
		}
		w := newTestWizard(client, &fakeStore{})
		advance(t, w, stop)

		routes := w.RouteOptions(ctx)
		if len(routes) != 2 {
			t.Errorf("got %d routes, want 2", len(routes))
		}

		directions := w.DirectionOptions(ctx)
		if len(directions) != 2 {
			t.Fatalf("got %d directions, want 2", len(directions))
		}
		test_helpers.AssertString(t, directions[0], "West")
		test_helpers.AssertString(t, directions[1], "East")
	})

	t.Run("should yield no suggestions when the lookup fails", func(t *testing.T) {
		client := &fakeClient{
			stops:     []model.Stop{stop},
			routesErr: errors.New("boom"),
		}
		w := newTestWizard(client, &fakeStore{})
		advance(t, w, stop)

		if routes := w.RouteOptions(ctx); routes != nil {
			t.Errorf("got %v, want no suggestions", routes)
		}
	})
}

func TestWizard_Abort(t *testing.T) {
	stop := model.Stop{StopID: "SPFLDPINE", StopName: "Springfield and Pine"}

	client := &fakeClient{stops: []model.Stop{stop}}
	store := &fakeStore{}
	w := newTestWizard(client, store)
	advance(t, w, stop)

	w.Abort()

	if w.State() != StateStopSearch {
		t.Errorf("got state %s, want %s", w.State(), StateStopSearch)
	}
	if store.saveCount != 0 {
		t.Errorf("got %d saves, want 0", store.saveCount)
	}
	test_helpers.AssertString(t, store.credential, "valid-key")
}
