package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/saviobatista/airshow-tracker/internal/types"
)

// DefaultOpenSkyURL is the public state-vector endpoint
const DefaultOpenSkyURL = "https://opensky-network.org/api/states/all"

// OpenSky state vector indexes
const (
	osIcao24 = iota
	osCallsign
	osOriginCountry
	osTimePosition
	osLastContact
	osLongitude
	osLatitude
	osBaroAltitude
	osOnGround
	osVelocity
	osTrueTrack
)

// OpenSky reads the OpenSky Network public feed
type OpenSky struct {
	client   *http.Client
	baseURL  string
	username string
	password string
}

// NewOpenSky creates an OpenSky feed. Credentials are optional.
func NewOpenSky(client *http.Client, baseURL, username, password string) *OpenSky {
	if baseURL == "" {
		baseURL = DefaultOpenSkyURL
	}
	return &OpenSky{
		client:   client,
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// Name returns the display name
func (o *OpenSky) Name() string {
	return "OpenSky"
}

// Configured is always true; anonymous access is allowed
func (o *OpenSky) Configured() bool {
	return true
}

// FetchStates fetches all state vectors inside bbox
func (o *OpenSky) FetchStates(ctx context.Context, bbox types.BBox) ([]types.AircraftState, error) {
	q := url.Values{}
	q.Set("lamin", formatCoord(bbox.LaMin))
	q.Set("lomin", formatCoord(bbox.LoMin))
	q.Set("lamax", formatCoord(bbox.LaMax))
	q.Set("lomax", formatCoord(bbox.LoMax))

	req, err := http.NewRequest(http.MethodGet, o.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenSky request: %w", err)
	}
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}

	body, err := get(ctx, o.client, o.Name(), req)
	if err != nil {
		return nil, err
	}
	return ParseOpenSky(body)
}

// ParseOpenSky decodes an /states/all response
func ParseOpenSky(body []byte) ([]types.AircraftState, error) {
	var payload struct {
		Time   json.RawMessage `json:"time"`
		States json.RawMessage `json:"states"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ShapeError{Provider: "OpenSky", Reason: err.Error()}
	}

	rows, ok := decodeList(payload.States)
	if !ok {
		return nil, &ShapeError{Provider: "OpenSky", Reason: "states is not an array"}
	}

	states := make([]types.AircraftState, 0, len(rows))
	for _, raw := range rows {
		var row []json.RawMessage
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		st, ok := openSkyState(row)
		if !ok {
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

func openSkyState(row []json.RawMessage) (types.AircraftState, bool) {
	at := func(i int) json.RawMessage {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	icao := decodeICAO(at(osIcao24))
	if icao == "" {
		return types.AircraftState{}, false
	}

	st := types.AircraftState{
		ICAO24:       icao,
		Callsign:     decodeTrimmed(at(osCallsign)),
		Longitude:    inRange(decodeNumber(at(osLongitude)), -180, 180),
		Latitude:     inRange(decodeNumber(at(osLatitude)), -90, 90),
		BaroAltitude: decodeNumber(at(osBaroAltitude)),
		OnGround:     decodeBool(at(osOnGround)),
		Velocity:     decodeNumber(at(osVelocity)),
		Heading:      decodeNumber(at(osTrueTrack)),
	}
	if country := decodeString(at(osOriginCountry)); country != nil {
		st.OriginCountry = *country
	}
	return st, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
