package session

import "context"

// Turn is one entry of a call's ordered conversation history.
// Roles follow chat-completion conventions: "user" or "assistant".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcoder converts between call audio and the formats the rest of the
// pipeline speaks: raw mu-law in, transcription WAV out, and synthesized
// clips back down to a telephony-playable WAV.
type Transcoder interface {
	MulawToWAV16k(ctx context.Context, inPath, outPath string) error
	ToCallWAV(ctx context.Context, inPath, outPath string) error
}

// Transcriber turns a finished WAV artifact into plain text. Empty text
// means no speech was detected and is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Generator produces the assistant reply for the latest transcript given
// the call's history. It never fails: on service errors it returns a
// fixed fallback string so the caller always hears something.
type Generator interface {
	Reply(ctx context.Context, userText string, history []Turn) string
}

// Synthesizer converts reply text into a complete playable audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CallUpdater publishes a finished clip and redirects the live call to
// play it before re-entering the listening loop.
type CallUpdater interface {
	PlayAndResume(ctx context.Context, callSID string, clipPath string) error
}

// Archiver persists a copy of transcoded call audio out of band. Optional;
// failures never affect the pipeline run.
type Archiver interface {
	Upload(key, contentType string, data []byte) error
}
