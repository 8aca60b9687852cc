package clips

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/telemetry"
)

var (
	ErrNoActiveSession = errors.New("no current session")
	ErrUnknownClip     = errors.New("unknown clip")
	ErrNotFailed       = errors.New("clip is not in failed status")
	ErrNoSourceURL     = errors.New("clip has no source url")
)

// SessionSource exposes the orchestrator's current session. Clip
// requests are valid for a stopped session too: incident review
// happens after the bout.
type SessionSource interface {
	Current() *core.Session
}

// PeerGateway is the registry surface the pipeline talks to peers
// through.
type PeerGateway interface {
	Send(id core.PeerID, msg protocol.Message)
	RecordingPeerIDs() []core.PeerID
}

// Pipeline requests clips from peers for a mark, tracks their
// readiness and downloads them with progress reporting and manual
// retry.
type Pipeline struct {
	clips    core.ClipsDBStorer
	sessions SessionSource
	peers    PeerGateway

	client      *http.Client
	storageRoot string

	// inFlight guards against two concurrent downloads of the same
	// clip id. It is the pipeline's only mutual exclusion primitive.
	mu       sync.Mutex
	inFlight map[core.ClipID]bool

	now func() time.Time
}

func NewPipeline(clips core.ClipsDBStorer, sessions SessionSource, peers PeerGateway, storageRoot string) *Pipeline {
	return &Pipeline{
		clips:       clips,
		sessions:    sessions,
		peers:       peers,
		client:      http.DefaultClient,
		storageRoot: storageRoot,
		inFlight:    make(map[core.ClipID]bool),
		now:         time.Now,
	}
}

// RequestClip creates a `requested` clip row for (mark, peer) and sends
// the clip-request command to the named peer.
func (p *Pipeline) RequestClip(markID core.MarkID, peerID core.PeerID, preRollMs, postRollMs int64, quality string) (*core.Clip, error) {
	session := p.sessions.Current()
	if session == nil {
		return nil, ErrNoActiveSession
	}

	clip := &core.Clip{
		ID:        core.ClipID(uuid.NewString()),
		SessionID: session.ID,
		MarkID:    markID,
		PeerID:    peerID,
		Status:    core.ClipRequested,
		CreatedAt: p.now(),
	}

	if err := p.clips.Save(clip); err != nil {
		return nil, err
	}

	p.peers.Send(peerID, protocol.NewRequestClip(string(session.ID), protocol.RequestClipPayload{
		ClipID:     string(clip.ID),
		MarkID:     string(markID),
		PreRollMs:  preRollMs,
		PostRollMs: postRollMs,
		Quality:    quality,
	}))

	log.Info().Str("service", "clips").Str("clipID", string(clip.ID)).Str("peerID", string(peerID)).Msg("clip requested")

	copied := *clip
	return &copied, nil
}

// RequestFromAllRecordingPeers fans one mark out to every recording
// peer. Each request is independent: a failure for one peer does not
// abort the others.
func (p *Pipeline) RequestFromAllRecordingPeers(markID core.MarkID, preRollMs, postRollMs int64, quality string) ([]*core.Clip, error) {
	if p.sessions.Current() == nil {
		return nil, ErrNoActiveSession
	}

	requested := []*core.Clip{}
	for _, peerID := range p.peers.RecordingPeerIDs() {
		clip, err := p.RequestClip(markID, peerID, preRollMs, postRollMs, quality)
		if err != nil {
			log.Error().Err(err).Str("service", "clips").Str("peerID", string(peerID)).Msg("clip request failed, continuing fan-out")
			continue
		}
		requested = append(requested, clip)
	}

	return requested, nil
}

// OnClipReady handles a peer's announcement that a clip file became
// available. An unknown clip id is logged and dropped, stale or
// duplicate peer messages must not disturb the pipeline. On success the
// download starts immediately.
func (p *Pipeline) OnClipReady(peerID core.PeerID, clipID core.ClipID, url string, durationMs, sizeBytes int64) {
	clip, err := p.clips.Find(clipID)
	if err != nil {
		log.Error().Err(err).Str("service", "clips").Str("clipID", string(clipID)).Msg("clip lookup")
		return
	}
	if clip == nil {
		log.Warn().Str("service", "clips").Str("clipID", string(clipID)).Str("peerID", string(peerID)).Msg("clip_ready for unknown clip dropped")
		return
	}
	if clip.Status == core.ClipDownloading || clip.Status == core.ClipDownloaded {
		log.Warn().Str("service", "clips").Str("clipID", string(clipID)).Str("status", string(clip.Status)).Msg("duplicate clip_ready dropped")
		return
	}

	clip.SourceURL = &url
	clip.DurationMs = durationMs
	clip.SizeBytes = sizeBytes
	clip.Status = core.ClipReady

	if err := p.clips.Update(clip); err != nil {
		log.Error().Err(err).Str("service", "clips").Str("clipID", string(clipID)).Msg("persist ready clip")
		return
	}

	go func() {
		if err := p.DownloadClip(clipID); err != nil {
			log.Error().Err(err).Str("service", "clips").Str("clipID", string(clipID)).Msg("download")
		}
	}()
}

// RetryDownload is only valid for a failed clip: it resets progress and
// error and re-enters the download path.
func (p *Pipeline) RetryDownload(clipID core.ClipID) error {
	clip, err := p.clips.Find(clipID)
	if err != nil {
		return err
	}
	if clip == nil {
		return ErrUnknownClip
	}
	if clip.Status != core.ClipFailed {
		return ErrNotFailed
	}

	clip.Status = core.ClipReady
	clip.Progress = 0
	clip.LastError = nil

	if err := p.clips.Update(clip); err != nil {
		return err
	}

	return p.DownloadClip(clipID)
}

// DownloadClip streams the remote clip to a local file under the
// session directory. Re-requesting a download already in progress for
// the same clip id is a no-op. Any failure is captured on the clip
// record and the partially written file is left in place for
// diagnostic retry.
func (p *Pipeline) DownloadClip(clipID core.ClipID) error {
	p.mu.Lock()
	if p.inFlight[clipID] {
		p.mu.Unlock()
		log.Debug().Str("service", "clips").Str("clipID", string(clipID)).Msg("download already in progress")
		return nil
	}
	p.inFlight[clipID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inFlight, clipID)
		p.mu.Unlock()
	}()

	clip, err := p.clips.Find(clipID)
	if err != nil {
		return err
	}
	if clip == nil {
		return ErrUnknownClip
	}
	if clip.SourceURL == nil {
		return ErrNoSourceURL
	}

	clip.Status = core.ClipDownloading
	clip.Progress = 0
	if err := p.clips.Update(clip); err != nil {
		return err
	}

	localPath, err := p.stream(clip)
	if err != nil {
		message := err.Error()
		clip.Status = core.ClipFailed
		clip.LastError = &message
		if updateErr := p.clips.Update(clip); updateErr != nil {
			log.Error().Err(updateErr).Str("service", "clips").Str("clipID", string(clipID)).Msg("persist failed clip")
		}
		telemetry.ClipDownloadFinished("failed")
		return err
	}

	now := p.now()
	clip.Status = core.ClipDownloaded
	clip.Progress = 1
	clip.LocalPath = &localPath
	clip.LastError = nil
	clip.DownloadedAt = &now

	if err := p.clips.Update(clip); err != nil {
		return err
	}

	telemetry.ClipDownloadFinished("downloaded")
	log.Info().Str("service", "clips").Str("clipID", string(clipID)).Str("path", localPath).Msg("clip downloaded")

	return nil
}

func (p *Pipeline) Find(id core.ClipID) (*core.Clip, error) {
	return p.clips.Find(id)
}

func (p *Pipeline) BySession(sessionID core.SessionID) ([]*core.Clip, error) {
	return p.clips.BySession(sessionID)
}

func (p *Pipeline) ByMark(markID core.MarkID) ([]*core.Clip, error) {
	return p.clips.ByMark(markID)
}

// LocalPath computes the destination file for a clip.
func (p *Pipeline) LocalPath(clip *core.Clip) string {
	return filepath.Join(p.storageRoot, "sessions", string(clip.SessionID), fmt.Sprintf("%s.mp4", clip.ID))
}

func (p *Pipeline) stream(clip *core.Clip) (string, error) {
	resp, err := p.client.Get(*clip.SourceURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from peer", resp.StatusCode)
	}

	localPath := p.LocalPath(clip)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", err
	}

	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	total := clip.SizeBytes
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	var written int64
	lastPersisted := 0.0
	buf := make([]byte, 64*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return "", writeErr
			}
			written += int64(n)
			telemetry.ClipBytesDownloaded(int64(n))

			// persist progress at coarse steps only, the store is not
			// a place for per-chunk writes
			if total > 0 {
				progress := float64(written) / float64(total)
				if progress > 1 {
					progress = 1
				}
				if progress-lastPersisted >= 0.1 {
					clip.Progress = progress
					if err := p.clips.Update(clip); err != nil {
						log.Error().Err(err).Str("service", "clips").Str("clipID", string(clip.ID)).Msg("persist progress")
					}
					lastPersisted = progress
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", readErr
		}
	}

	return localPath, nil
}
