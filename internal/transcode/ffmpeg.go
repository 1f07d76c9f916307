// Package transcode converts telephony audio with an external ffmpeg
// process. Telephony frames carry no container header, so the input format
// is always passed explicitly rather than sniffed.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrTranscode marks a failed conversion. Transcode failures are not
// retried: the same input produces the same result.
var ErrTranscode = errors.New("transcode failed")

// FFmpeg invokes the ffmpeg binary for format conversion.
type FFmpeg struct {
	Bin string
}

// NewFFmpeg returns a transcoder using the given binary ("ffmpeg" if empty).
func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{Bin: bin}
}

// MulawToWAV16k converts raw mu-law 8 kHz mono call audio into a 16 kHz
// mono 16-bit signed PCM WAV suitable for transcription.
func (f *FFmpeg) MulawToWAV16k(ctx context.Context, inPath, outPath string) error {
	return f.run(ctx, mulawToWAV16kArgs(inPath, outPath))
}

// ToCallWAV converts a self-describing input (e.g. synthesized MP3) into
// an 8 kHz mono 16-bit signed PCM WAV that the telephony platform can play.
func (f *FFmpeg) ToCallWAV(ctx context.Context, inPath, outPath string) error {
	return f.run(ctx, toCallWAVArgs(inPath, outPath))
}

func mulawToWAV16kArgs(inPath, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "mulaw", "-ar", "8000", "-ac", "1",
		"-i", inPath,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		"-f", "wav", "-y", outPath,
	}
}

func toCallWAVArgs(inPath, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-ar", "8000", "-ac", "1", "-c:a", "pcm_s16le",
		"-f", "wav", "-y", outPath,
	}
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("%w: %v: %s", ErrTranscode, err, msg)
		}
		return fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	return nil
}
