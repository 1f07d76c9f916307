// Package stream terminates the live media WebSocket. Each connection
// carries one call's audio as JSON events with base64 mu-law payloads;
// the handler decodes them and feeds the call's session.
package stream

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chadiek/callbridge/internal/session"
)

// event is the envelope every media-channel message arrives in. Only the
// fields for the event's type are populated.
type event struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
	Stop  *stopPayload  `json:"stop,omitempty"`
}

type startPayload struct {
	CallSID   string      `json:"callSid"`
	StreamSID string      `json:"streamSid"`
	Format    mediaFormat `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type stopPayload struct {
	CallSID string `json:"callSid"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// The telephony provider connects from rotating IPs with no Origin.
		return true
	},
}

// Handler owns the media endpoint and routes events into the registry.
type Handler struct {
	Registry *session.Registry
}

func NewHandler(reg *session.Registry) *Handler {
	return &Handler{Registry: reg}
}

// ServeHTTP upgrades the connection and runs the per-call read loop until
// the stop event or the peer disconnects. Connection loss without a stop
// event still terminates the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("media ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var (
		callSID string
		sess    *session.Session
	)
	defer func() {
		if callSID != "" {
			h.Registry.Stop(callSID)
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if callSID != "" {
				log.Printf("[%s] media ws closed: %v", callSID, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		switch ev.Event {
		case "start":
			if ev.Start == nil || ev.Start.CallSID == "" {
				continue
			}
			callSID = ev.Start.CallSID
			sess = h.Registry.Start(callSID)
			log.Printf("[%s] media stream %s started (%s %dHz)",
				callSID, ev.Start.StreamSID, ev.Start.Format.Encoding, ev.Start.Format.SampleRate)

		case "media":
			if sess == nil || ev.Media == nil {
				continue
			}
			frame, derr := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if derr != nil {
				log.Printf("[%s] dropping undecodable media frame: %v", callSID, derr)
				continue
			}
			sess.Media(frame)

		case "stop":
			if callSID != "" {
				h.Registry.Stop(callSID)
				callSID = ""
				sess = nil
			}
			return

		default:
			// connected, mark and future event types are ignored
		}
	}
}
