package nats

import (
	"time"

	"github.com/saviobatista/airshow-tracker/internal/types"
)

// MarkerSink receives marker events
type MarkerSink interface {
	PublishMarker(event *types.MarkerEvent) error
}

// MarkerPublisher renders markers by publishing them as events, so any map
// client subscribed to tracker.markers can draw them.
type MarkerPublisher struct {
	sink      MarkerSink
	sessionID string
	now       func() time.Time
}

// NewMarkerPublisher creates a renderer publishing to sink
func NewMarkerPublisher(sink MarkerSink, sessionID string) *MarkerPublisher {
	return &MarkerPublisher{sink: sink, sessionID: sessionID, now: time.Now}
}

func (p *MarkerPublisher) event(action, icao24 string, rec *types.MarkerRecord) *types.MarkerEvent {
	return &types.MarkerEvent{
		SessionID: p.sessionID,
		Action:    action,
		ICAO24:    icao24,
		Marker:    rec,
		Timestamp: p.now().UTC(),
	}
}

// AddMarker publishes a new marker
func (p *MarkerPublisher) AddMarker(rec types.MarkerRecord) error {
	return p.sink.PublishMarker(p.event(ActionAdd, rec.ICAO24, &rec))
}

// UpdateMarker publishes a moved or restyled marker
func (p *MarkerPublisher) UpdateMarker(rec types.MarkerRecord) error {
	return p.sink.PublishMarker(p.event(ActionUpdate, rec.ICAO24, &rec))
}

// RemoveMarker publishes a marker removal
func (p *MarkerPublisher) RemoveMarker(icao24 string) error {
	return p.sink.PublishMarker(p.event(ActionRemove, icao24, nil))
}
