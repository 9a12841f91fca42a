package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/bilifetch/bilifetch"
	"github.com/bilifetch/bilifetch/download"
	"github.com/bilifetch/bilifetch/util"
)

// DownloadRequest describes one download operation against a video
// identifier. Quality is an optional exact quality label; empty means "best
// available". Parts selects 1-based part indices; empty means the page hint
// from the identifier, or all parts when there is no hint.
type DownloadRequest struct {
	Identifier string
	Quality    string
	Parts      []int
	OutputDir  string
}

// PartResult is the outcome of one part, in the same order the parts were
// requested regardless of completion order.
type PartResult struct {
	Part       bilifetch.PartDescriptor
	Pair       bilifetch.NegotiatedPair
	OutputPath string
	Attempts   int
	Err        error
}

// Download resolves the identifier, negotiates a stream pair for every
// requested part up front, then fetches the parts concurrently and muxes each
// completed pair into its final container. Negotiation failures surface
// before any stream bytes move.
func (s *Session) Download(ctx context.Context, req DownloadRequest) ([]PartResult, error) {
	id, pageHint, err := bilifetch.ParseIdentifier(req.Identifier)
	if err != nil {
		return nil, err
	}
	tier := s.currentTier(ctx)

	creds, _ := s.Snapshot()
	desc, err := s.platform.ResolveVideo(ctx, id, creds)
	if err != nil {
		return nil, err
	}
	parts, err := selectParts(desc, req.Parts, pageHint)
	if err != nil {
		return nil, err
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.config.OutputDir
	}

	// Negotiate everything first so an impossible quality request fails the
	// whole operation cleanly.
	results := make([]PartResult, len(parts))
	jobs := make([]*download.Job, len(parts))
	for i, part := range parts {
		pair, err := bilifetch.Negotiate(part, tier, req.Quality)
		if err != nil {
			return nil, fmt.Errorf("%s P%d: %w", desc.ID, part.Index, err)
		}
		base := filepath.Join(outputDir, jobFilename(desc, part, len(parts) > 1 || len(desc.Parts) > 1))
		results[i] = PartResult{Part: part, Pair: pair, OutputPath: base + ".mp4"}
		jobs[i] = download.NewJob(part.Index, pair, base+".m4v", base+".m4a")
	}

	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i].Err = s.runJob(ctx, jobs[i], results[i].OutputPath)
			results[i].Attempts = jobs[i].Attempts()
		}(i)
	}
	wg.Wait()

	var merr *multierror.Error
	for i := range results {
		s.record(desc, &results[i])
		if results[i].Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s P%d: %w", desc.ID, results[i].Part.Index, results[i].Err))
		}
	}
	return results, merr.ErrorOrNil()
}

// runJob fetches the job's stream pair and muxes it into outputPath. The
// intermediate stream files are removed only after a successful mux.
func (s *Session) runJob(ctx context.Context, job *download.Job, outputPath string) error {
	if err := s.download.Run(ctx, job); err != nil {
		return err
	}
	if err := s.muxer.Mux(ctx, job.VideoPath, job.AudioPath, outputPath); err != nil {
		return err
	}
	if err := os.Remove(job.VideoPath); err != nil {
		s.log.Warnw("could not remove intermediate stream", "path", job.VideoPath, "error", err)
	}
	if err := os.Remove(job.AudioPath); err != nil {
		s.log.Warnw("could not remove intermediate stream", "path", job.AudioPath, "error", err)
	}
	return nil
}

func (s *Session) record(desc *bilifetch.VideoDescriptor, res *PartResult) {
	if s.history == nil {
		return
	}
	rec := HistoryRecord{
		VideoID:      desc.ID.String(),
		Part:         res.Part.Index,
		Title:        res.Part.Title,
		Quality:      res.Pair.Video.QualityLabel,
		AudioQuality: res.Pair.Audio.QualityLabel,
		OutputPath:   res.OutputPath,
		Status:       "completed",
	}
	if res.Err != nil {
		rec.Status = "failed"
		rec.Error = res.Err.Error()
	}
	if err := s.history(rec); err != nil {
		s.log.Warnw("could not record download history", "error", err)
	}
}

// selectParts maps requested 1-based indices to part descriptors. With no
// explicit selection, a page hint from the identifier URL selects that single
// part, and otherwise every part is selected.
func selectParts(desc *bilifetch.VideoDescriptor, requested []int, pageHint int) ([]bilifetch.PartDescriptor, error) {
	if len(requested) == 0 && pageHint > 0 {
		requested = []int{pageHint}
	}
	if len(requested) == 0 {
		return desc.Parts, nil
	}
	parts := make([]bilifetch.PartDescriptor, 0, len(requested))
	for _, idx := range requested {
		if idx < 1 || idx > len(desc.Parts) {
			return nil, fmt.Errorf("%w: %s has no part %d", bilifetch.ErrNotFound, desc.ID, idx)
		}
		parts = append(parts, desc.Parts[idx-1])
	}
	return parts, nil
}

// jobFilename builds the output base name (no extension) for one part.
func jobFilename(desc *bilifetch.VideoDescriptor, part bilifetch.PartDescriptor, multi bool) string {
	name := desc.Title
	if multi {
		name = fmt.Sprintf("%s_P%d", name, part.Index)
		if part.Title != "" && part.Title != desc.Title {
			name = fmt.Sprintf("%s_%s", name, part.Title)
		}
	}
	return util.SanitizeFilename(name)
}
