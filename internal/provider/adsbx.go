package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/saviobatista/airshow-tracker/internal/types"
)

// DefaultADSBXURL is the ADS-B Exchange v2 API root
const DefaultADSBXURL = "https://api.adsbexchange.com/v2"

const (
	feetToMetres = 0.3048
	knotsToMPS   = 0.514444
)

// ADSBX reads the keyed ADS-B Exchange v2 feed
type ADSBX struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewADSBX creates an ADS-B Exchange feed. Without a key it reports itself unconfigured.
func NewADSBX(client *http.Client, baseURL, apiKey string) *ADSBX {
	if baseURL == "" {
		baseURL = DefaultADSBXURL
	}
	return &ADSBX{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// Name returns the display name
func (a *ADSBX) Name() string {
	return "ADS-B Exchange"
}

// Configured reports whether an API key is set
func (a *ADSBX) Configured() bool {
	return a.apiKey != ""
}

// FetchStates fetches all aircraft inside bbox
func (a *ADSBX) FetchStates(ctx context.Context, bbox types.BBox) ([]types.AircraftState, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/lat/%s/%s/lon/%s/%s", a.baseURL,
		formatCoord(bbox.LaMin), formatCoord(bbox.LaMax),
		formatCoord(bbox.LoMin), formatCoord(bbox.LoMax))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ADS-B Exchange request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)

	body, err := get(ctx, a.client, a.Name(), req)
	if err != nil {
		return nil, err
	}
	return ParseADSBX(body)
}

// ParseADSBX decodes a v2 response. Altitude and ground speed arrive in feet
// and knots and are converted to metres and metres per second.
func ParseADSBX(body []byte) ([]types.AircraftState, error) {
	var payload struct {
		AC json.RawMessage `json:"ac"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ShapeError{Provider: "ADS-B Exchange", Reason: err.Error()}
	}

	rows, ok := decodeList(payload.AC)
	if !ok {
		return nil, &ShapeError{Provider: "ADS-B Exchange", Reason: "ac is not an array"}
	}

	states := make([]types.AircraftState, 0, len(rows))
	for _, raw := range rows {
		var ac map[string]json.RawMessage
		if err := json.Unmarshal(raw, &ac); err != nil {
			continue
		}
		st, ok := adsbxState(ac)
		if !ok {
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

func adsbxState(ac map[string]json.RawMessage) (types.AircraftState, bool) {
	icao := decodeICAO(first(ac, "icao", "hex"))
	if icao == "" {
		return types.AircraftState{}, false
	}

	st := types.AircraftState{
		ICAO24:    icao,
		Callsign:  decodeTrimmed(first(ac, "call", "flight")),
		Latitude:  inRange(decodeNumber(ac["lat"]), -90, 90),
		Longitude: inRange(decodeNumber(ac["lon"]), -180, 180),
		Heading:   decodeNumber(first(ac, "track", "trak")),
		Velocity:  scale(decodeNumber(ac["gs"]), knotsToMPS),
	}

	alt := ac["alt_baro"]
	if s := decodeString(alt); s != nil && strings.EqualFold(*s, "ground") {
		st.OnGround = true
	} else {
		st.BaroAltitude = scale(decodeNumber(alt), feetToMetres)
		st.OnGround = st.Velocity != nil && *st.Velocity == 0
	}

	if country := decodeString(ac["country"]); country != nil {
		st.OriginCountry = *country
	}
	return st, true
}

func first(ac map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := ac[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}
