package main

import (
	"encoding/json"

	"dev.acmcsuf.com/pixeltree/pixelmap"
)

// ViewerEvent is a JSON text message sent to a browser viewer. Frames are
// not events; they are sent as binary messages of raw RGB triples.
type ViewerEvent interface {
	Type() ViewerEventType
}

// ViewerEventType is the type of a ViewerEvent.
type ViewerEventType string

const (
	ViewerEventTypeInit  ViewerEventType = "init"
	ViewerEventTypeError ViewerEventType = "error"
)

// ViewerInit is sent once when a viewer connects.
type ViewerInit struct {
	ViewerID string           `json:"viewer_id"`
	Points   []pixelmap.Point `json:"points"`
}

// Type implements ViewerEvent.
func (ViewerInit) Type() ViewerEventType {
	return ViewerEventTypeInit
}

// ViewerError is sent right before the server closes a viewer.
type ViewerError struct {
	Message string `json:"message"`
}

// Type implements ViewerEvent.
func (ViewerError) Type() ViewerEventType {
	return ViewerEventTypeError
}

type viewerMessage struct {
	Type ViewerEventType `json:"type"`
	Data ViewerEvent     `json:"data"`
}

func marshalViewerEvent(event ViewerEvent) []byte {
	b, err := json.Marshal(viewerMessage{
		Type: event.Type(),
		Data: event,
	})
	if err != nil {
		panic(err)
	}
	return b
}
