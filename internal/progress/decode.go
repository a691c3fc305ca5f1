// Package progress defines the progress events pushed by the remote scrape
// executor and decodes them from their JSON wire form.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedFrame is returned (wrapped) for frames that are not valid
// progress JSON or whose payload does not match the tag's shape.
var ErrMalformedFrame = errors.New("malformed progress frame")

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type decodeFunc func(data json.RawMessage) (Event, error)

func payload[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decoders covers every wire tag. Notice is deliberately absent.
var decoders = map[Type]decodeFunc{
	TypeConnected:       payload[Connected],
	TypePhase:           payload[Phase],
	TypePagination:      payload[Pagination],
	TypePageScraped:     payload[PageScraped],
	TypeURLsFound:       payload[URLsFound],
	TypeScrapingItem:    payload[ScrapingItem],
	TypeOverallProgress: payload[OverallProgress],
	TypeCompleted:       payload[Completed],
	TypeError:           payload[Error],
	TypeHeartbeat:       func(json.RawMessage) (Event, error) { return Heartbeat{}, nil },
}

// Decode parses one frame payload. Unrecognized tags decode to Unknown
// without error.
func Decode(raw []byte, receivedAt time.Time) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	dec, ok := decoders[Type(f.Type)]
	if !ok {
		return Wrap(Unknown{Tag: f.Type, Data: []byte(f.Data)}, receivedAt), nil
	}
	ev, err := dec(f.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, f.Type, err)
	}
	return Wrap(ev, receivedAt), nil
}
