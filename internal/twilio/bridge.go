package twilio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrCallUpdate wraps failures to redirect a live call.
var ErrCallUpdate = errors.New("call update failed")

// CallAPI is the slice of the REST client the bridge needs.
type CallAPI interface {
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Bridge publishes finished reply clips under the public audio directory
// and redirects live calls to play them. It is the out-of-band half of
// the conversation loop: the media stream listens, the bridge speaks.
type Bridge struct {
	API           CallAPI
	AudioDir      string
	PublicBaseURL string
	WaitPath      string

	// RetryDelay separates the single retry of a failed update.
	RetryDelay time.Duration
}

// NewBridge builds a bridge backed by the real REST API.
func NewBridge(accountSID, authToken, publicBaseURL, audioDir string) *Bridge {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Bridge{
		API:           client.Api,
		AudioDir:      audioDir,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		WaitPath:      "/twilio/wait",
		RetryDelay:    500 * time.Millisecond,
	}
}

// PublishClip copies audio into the public audio directory under a unique
// name and returns its absolute URL.
func (b *Bridge) PublishClip(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(b.AudioDir, 0o755); err != nil {
		return "", fmt.Errorf("audio dir: %w", err)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(b.AudioDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("publish clip: %w", err)
	}
	return b.PublicBaseURL + "/audio/" + name, nil
}

// PlayAndResume publishes the staged clip and redirects the call to play
// it before re-entering the listening loop. A failed update gets exactly
// one retry; the media stream keeps running either way, so a dropped
// reply costs one turn, not the call.
func (b *Bridge) PlayAndResume(ctx context.Context, callSID, clipPath string) error {
	data, err := os.ReadFile(clipPath)
	if err != nil {
		return fmt.Errorf("%w: read clip: %v", ErrCallUpdate, err)
	}
	clipURL, err := b.PublishClip(data, filepath.Ext(clipPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallUpdate, err)
	}

	doc, err := PlayAndResumeTwiML(clipURL, b.WaitPath)
	if err != nil {
		return fmt.Errorf("%w: build twiml: %v", ErrCallUpdate, err)
	}

	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			log.Printf("[%s] retrying call update: %v", callSID, lastErr)
			select {
			case <-time.After(b.retryDelay()):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrCallUpdate, ctx.Err())
			}
		}
		if _, lastErr = b.API.UpdateCall(callSID, params); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrCallUpdate, lastErr)
}

func (b *Bridge) retryDelay() time.Duration {
	if b.RetryDelay > 0 {
		return b.RetryDelay
	}
	return 500 * time.Millisecond
}
