package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/chadiek/callbridge/internal/artifact"
)

// Pipeline runs one flush end to end: stage raw audio, transcode it for
// the transcription service, transcribe, generate a reply, synthesize it,
// and hand the clip to the call-control bridge. Every staged artifact is
// removed on every exit path, and each external call is bounded by
// StageTimeout so a stuck collaborator cannot pin the session in
// StateFlushing.
type Pipeline struct {
	Store       *artifact.Store
	Transcoder  Transcoder
	Transcriber Transcriber
	Generator   Generator
	Synthesizer Synthesizer
	Updater     CallUpdater

	// Archiver, when set, receives a copy of each flush's transcoded WAV.
	Archiver Archiver

	StageTimeout time.Duration
}

// Run implements PipelineRunner.
func (p *Pipeline) Run(ctx context.Context, callSID string, raw []byte, history []Turn) (string, string, error) {
	rawArt, err := p.Store.Write("raw", ".ulaw", raw)
	if err != nil {
		return "", "", fmt.Errorf("stage raw audio: %w", err)
	}
	defer rawArt.Remove()

	wavArt := p.Store.Create("speech", ".wav")
	defer wavArt.Remove()

	tctx, cancel := p.stageContext(ctx)
	err = p.Transcoder.MulawToWAV16k(tctx, rawArt.Path, wavArt.Path)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("transcode: %w", err)
	}

	if p.Archiver != nil {
		if data, rerr := os.ReadFile(wavArt.Path); rerr == nil {
			key := fmt.Sprintf("calls/%s/%s", callSID, wavArt.Name)
			go func() {
				if aerr := p.Archiver.Upload(key, "audio/wav", data); aerr != nil {
					log.Printf("[%s] archive upload failed: %v", callSID, aerr)
				}
			}()
		}
	}

	sttCtx, cancel := p.stageContext(ctx)
	text, err := p.Transcriber.Transcribe(sttCtx, wavArt.Path)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("transcribe: %w", err)
	}
	log.Printf("[%s] heard: %q", callSID, text)

	// An empty transcript means no speech detected; the reply generator
	// still runs so the turn completes normally.
	genCtx, cancel := p.stageContext(ctx)
	reply := p.Generator.Reply(genCtx, text, history)
	cancel()

	synCtx, cancel := p.stageContext(ctx)
	audio, err := p.Synthesizer.Synthesize(synCtx, reply)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("synthesize: %w", err)
	}

	clipArt, err := p.Store.Write("reply", ".mp3", audio)
	if err != nil {
		return "", "", fmt.Errorf("stage reply clip: %w", err)
	}
	defer clipArt.Remove()

	// Convert the synthesized clip down to a telephony-playable WAV so
	// playback starts without a decode delay on the carrier side.
	callArt := p.Store.Create("reply", ".wav")
	defer callArt.Remove()

	ctcCtx, cancel := p.stageContext(ctx)
	err = p.Transcoder.ToCallWAV(ctcCtx, clipArt.Path, callArt.Path)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("transcode reply: %w", err)
	}

	updCtx, cancel := p.stageContext(ctx)
	err = p.Updater.PlayAndResume(updCtx, callSID, callArt.Path)
	cancel()
	if err != nil {
		return "", "", fmt.Errorf("call update: %w", err)
	}

	log.Printf("[%s] replied: %q", callSID, reply)
	return text, reply, nil
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.StageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
