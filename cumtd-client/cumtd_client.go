package cumtd_client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

// CumtdClient configuration options for connecting to and requesting
// information from the CUMTD developer API
type CumtdClient struct {
	Client        *http.Client
	Logger        *dlog.Logger
	BaseURL       string
	APIKey        string
	MaxDepartures int
}

type CumtdClientInterface interface {
	FetchDepartures(ctx context.Context, stopID string) ([]model.Prediction, error)
	SearchStops(ctx context.Context, query string) ([]model.Stop, error)
	RoutesByStop(ctx context.Context, stopID string) ([]string, error)
	ValidateKey(ctx context.Context) error
}

type statusPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type routePayload struct {
	RouteID        string `json:"route_id"`
	RouteShortName string `json:"route_short_name"`
}

type tripPayload struct {
	TripID    string `json:"trip_id"`
	Direction string `json:"direction"`
}

type departurePayload struct {
	StopID      string       `json:"stop_id"`
	Headsign    string       `json:"headsign"`
	Route       routePayload `json:"route"`
	Trip        tripPayload  `json:"trip"`
	Expected    string       `json:"expected"`
	Scheduled   string       `json:"scheduled"`
	IsMonitored bool         `json:"is_monitored"`
}

type departuresEnvelope struct {
	Status     statusPayload      `json:"status"`
	Departures []departurePayload `json:"departures"`
}

type stopsEnvelope struct {
	Status statusPayload `json:"status"`
	Stops  []model.Stop  `json:"stops"`
}

type routesEnvelope struct {
	Status statusPayload  `json:"status"`
	Routes []routePayload `json:"routes"`
}

// FetchDepartures requests upcoming departures for a stop and returns the
// full normalized list; route and direction narrowing happens downstream
// so that every filter watching the stop can share one request.
func (c *CumtdClient) FetchDepartures(ctx context.Context, stopID string) ([]model.Prediction, error) {
	c.Logger.Debugf("FetchDepartures for `%s`", stopID)

	if stopID == "" {
		return nil, errors.New("stop id is required")
	}

	params := url.Values{}
	params.Set("stop_id", stopID)
	if c.MaxDepartures > 0 {
		params.Set("count", strconv.Itoa(c.MaxDepartures))
	}

	body, err := c.request(ctx, "getdeparturesbystop", params)
	if err != nil {
		return nil, err
	}

	envelope := departuresEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedError{Err: err}
	}

	if err := c.checkStatus(envelope.Status); err != nil {
		return nil, err
	}

	predictions := make([]model.Prediction, 0, len(envelope.Departures))
	for _, dep := range envelope.Departures {
		prediction, err := c.createPrediction(dep)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, prediction)
	}

	return predictions, nil
}

// SearchStops resolves a free-text query to candidate stops. The upstream
// API has no server-side search, so the full stop list is fetched and
// matched case-insensitively on stop name.
func (c *CumtdClient) SearchStops(ctx context.Context, query string) ([]model.Stop, error) {
	c.Logger.Debugf("SearchStops for `%s`", query)

	body, err := c.request(ctx, "getstops", url.Values{})
	if err != nil {
		return nil, err
	}

	envelope := stopsEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedError{Err: err}
	}

	if err := c.checkStatus(envelope.Status); err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	matches := make([]model.Stop, 0)
	for _, stop := range envelope.Stops {
		if strings.Contains(strings.ToLower(stop.StopName), queryLower) {
			matches = append(matches, stop)
		}
	}

	return matches, nil
}

// RoutesByStop returns the distinct route codes that service a stop, not
// just the ones currently running.
func (c *CumtdClient) RoutesByStop(ctx context.Context, stopID string) ([]string, error) {
	c.Logger.Debugf("RoutesByStop for `%s`", stopID)

	if stopID == "" {
		return nil, errors.New("stop id is required")
	}

	params := url.Values{}
	params.Set("stop_id", stopID)

	body, err := c.request(ctx, "getroutesbystop", params)
	if err != nil {
		return nil, err
	}

	envelope := routesEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedError{Err: err}
	}

	if err := c.checkStatus(envelope.Status); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	routes := make([]string, 0, len(envelope.Routes))
	for _, route := range envelope.Routes {
		code := route.RouteShortName
		if code == "" {
			code = route.RouteID
		}
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		routes = append(routes, code)
	}

	sort.Strings(routes)

	return routes, nil
}

// ValidateKey makes a lightweight request to prove the API key works.
// Any upstream complaint other than an auth rejection still means the key
// itself is fine.
func (c *CumtdClient) ValidateKey(ctx context.Context) error {
	c.Logger.Debug("ValidateKey")

	_, err := c.request(ctx, "getstops", url.Values{})
	if err == nil || IsMalformed(err) {
		return nil
	}

	return err
}

func (c *CumtdClient) request(ctx context.Context, method string, params url.Values) ([]byte, error) {
	c.Logger.Debugf("request `%s`", method)

	if c.APIKey == "" {
		return nil, &AuthError{Message: "no API key configured"}
	}

	params.Set("key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.BaseURL, "/")+"/"+method, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create upstream HTTP request")
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	body, err := c.readResponse(resp)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Message: strings.TrimSpace(string(body))}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &NetworkError{Err: errors.Errorf("upstream returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &MalformedError{Err: errors.Errorf("upstream returned status %d", resp.StatusCode)}
	}

	return body, nil
}

func (c *CumtdClient) readResponse(resp *http.Response) (body []byte, err error) {
	c.Logger.Debug("readResponse")
	defer func() {
		if ferr := resp.Body.Close(); ferr != nil {
			err = ferr
			return
		}
	}()

	body, err = io.ReadAll(resp.Body)
	return body, err
}

func (c *CumtdClient) checkStatus(status statusPayload) error {
	c.Logger.Debugf("checkStatus code %d", status.Code)

	switch {
	case status.Code == 0 || status.Code == http.StatusOK:
		return nil
	case status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden:
		return &AuthError{Message: status.Msg}
	default:
		return &NetworkError{Err: errors.Errorf("upstream API error %d: %s", status.Code, status.Msg)}
	}
}

func (c *CumtdClient) createPrediction(dep departurePayload) (model.Prediction, error) {
	route := dep.Route.RouteShortName
	if route == "" {
		route = dep.Route.RouteID
	}

	prediction := model.Prediction{
		StopID:     dep.StopID,
		Headsign:   dep.Headsign,
		Route:      route,
		Direction:  dep.Trip.Direction,
		IsRealTime: dep.IsMonitored,
		TripID:     dep.Trip.TripID,
	}

	if dep.Expected != "" {
		expected, err := time.Parse(time.RFC3339, dep.Expected)
		if err != nil {
			return model.Prediction{}, &MalformedError{Err: errors.Wrapf(err, "cannot parse expected time `%s`", dep.Expected)}
		}
		prediction.Expected = expected
	}

	if dep.Scheduled != "" {
		scheduled, err := time.Parse(time.RFC3339, dep.Scheduled)
		if err != nil {
			return model.Prediction{}, &MalformedError{Err: errors.Wrapf(err, "cannot parse scheduled time `%s`", dep.Scheduled)}
		}
		prediction.Scheduled = scheduled
	}

	return prediction, nil
}
