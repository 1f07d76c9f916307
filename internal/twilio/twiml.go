package twilio

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"
)

// The listening loop keeps the call alive in 15-second slices: each
// /twilio/wait hit pauses then redirects back to itself, so the call
// never runs into a single verb's duration ceiling while the media
// stream does the real work.
const waitSliceSeconds = 15

// InboundResponse answers a fresh call: fork the audio to the media
// WebSocket, speak the greeting, then enter the listening loop.
// greetingURL may be empty, in which case a plain spoken fallback is
// used so the caller never gets silence.
func InboundResponse(mediaWSURL, greetingURL, fallbackGreeting, waitPath string) (string, error) {
	elements := []twiml.Element{
		&twiml.VoiceStart{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: mediaWSURL},
			},
		},
	}
	if greetingURL != "" {
		elements = append(elements, &twiml.VoicePlay{Url: greetingURL})
	} else {
		elements = append(elements, &twiml.VoiceSay{Message: fallbackGreeting})
	}
	elements = append(elements,
		&twiml.VoicePause{Length: fmt.Sprintf("%d", waitSliceSeconds)},
		&twiml.VoiceRedirect{Url: waitPath},
	)
	return twiml.Voice(elements)
}

// WaitResponse is one slice of the listening loop.
func WaitResponse(waitPath string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoicePause{Length: fmt.Sprintf("%d", waitSliceSeconds)},
		&twiml.VoiceRedirect{Url: waitPath},
	})
}

// PlayAndResumeTwiML plays a finished reply clip then re-enters the
// listening loop. The short pause after the clip absorbs the redirect
// round trip without clipping the audio.
func PlayAndResumeTwiML(clipURL, waitPath string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoicePlay{Url: clipURL},
		&twiml.VoicePause{Length: "1"},
		&twiml.VoiceRedirect{Url: waitPath},
	})
}
