// Package search runs a bid notice search end to end: remote query, raw payload on disk,
// attachment downloads, report, cache and archive.
package search

import (
	"bid-fetch/internal/bid_fetch/cache"
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/helper"
	"bid-fetch/internal/bid_fetch/model"
	"bid-fetch/internal/bid_fetch/processor"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned for an unknown or expired search id.
var ErrNotFound = errors.New("search not found")

// Client queries the remote bid notice list.
type Client interface {
	Search(ctx context.Context, params model.SearchParams) (*model.Envelope, error)
}

// Fetcher downloads the attachments of one notice.
type Fetcher interface {
	Download(ctx context.Context, job processor.DownloadJob) []model.DownloadedAttachment
}

type Service struct {
	Log        *zap.Logger
	Client     Client
	Downloader Fetcher
	Library    *files.Library
	Results    *cache.Store[*model.SearchResult]
	Progresses *cache.Store[model.SearchProgress]
	Archive    helper.Archive

	now   func() time.Time
	newID func() string
}

// NewService wires a service. A nil archive or helper.NopArchive keeps results in the cache only.
func NewService(log *zap.Logger, client Client, downloader Fetcher, lib *files.Library,
	results *cache.Store[*model.SearchResult], progresses *cache.Store[model.SearchProgress], archive helper.Archive) *Service {
	return &Service{
		Log:        log,
		Client:     client,
		Downloader: downloader,
		Library:    lib,
		Results:    results,
		Progresses: progresses,
		Archive:    archive,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run executes one search. Invalid parameters fail before any disk or network activity; a
// failed remote call returns its error and no result. Attachment failures never abort the
// search, they are recorded per attachment.
func (s *Service) Run(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	log := s.Log.With(zap.String("search_id", id), zap.String("keyword", params.Keyword))
	started := s.now()

	searchDir, err := s.Library.CreateSearchDir(id)
	if err != nil {
		return nil, fmt.Errorf("create search dir: %w", err)
	}
	s.Progresses.Put(id, model.SearchProgress{
		SearchID:    id,
		CurrentStep: model.StepSearching,
		StartTime:   started,
	})
	log.Info("Search started",
		zap.String("start_date", params.StartDate),
		zap.String("end_date", params.EndDate),
		zap.Int("num_rows", params.NumRows),
	)

	env, err := s.Client.Search(ctx, params)
	if err != nil {
		s.updateProgress(id, func(p *model.SearchProgress) {
			p.CurrentStep = model.StepFailed
			p.Errors = append(p.Errors, err.Error())
		})
		log.Error("Search failed", zap.Error(err))
		return nil, err
	}

	jsonFile := filepath.Join(searchDir, id+"_search_results.json")
	if err := writeIndented(jsonFile, env.Raw); err != nil {
		log.Error("Failed to save raw search results", zap.Error(err))
		s.addProgressError(id, err.Error())
	}

	notices, err := env.Items()
	if err != nil {
		log.Warn("Failed to decode items", zap.Error(err))
		s.addProgressError(id, err.Error())
	}

	s.updateProgress(id, func(p *model.SearchProgress) {
		p.TotalBids = len(notices)
		p.CurrentStep = model.StepDownloading
	})

	items := make([]model.BidItem, 0, len(notices))
	for _, n := range notices {
		bidNo := n.Number()
		s.updateProgress(id, func(p *model.SearchProgress) { p.CurrentBid = bidNo })

		downloaded := s.Downloader.Download(ctx, processor.DownloadJob{
			SearchID:  id,
			SearchDir: searchDir,
			BidNo:     bidNo,
			Refs:      n.Attachments(),
		})
		var failed []string
		for _, d := range downloaded {
			if !d.Downloaded {
				failed = append(failed, fmt.Sprintf("%s: download failed: %s", bidNo, d.Filename))
			}
		}
		items = append(items, model.NewBidItem(n, downloaded))

		s.updateProgress(id, func(p *model.SearchProgress) {
			p.ProcessedBids++
			p.Errors = append(p.Errors, failed...)
		})
	}

	result := &model.SearchResult{
		SearchID:     id,
		SearchParams: params,
		SearchDir:    searchDir,
		JSONFile:     jsonFile,
		TotalCount:   max(env.TotalCount(), len(items)),
		Items:        items,
		Timestamp:    s.now(),
	}

	s.updateProgress(id, func(p *model.SearchProgress) { p.CurrentStep = model.StepReporting })
	if reportFile, err := s.writeReport(result); err != nil {
		log.Error("Failed to write search report", zap.Error(err))
		s.addProgressError(id, err.Error())
	} else {
		result.ReportFile = reportFile
	}

	s.Results.Put(id, result)
	if s.Archive != nil {
		if err := s.Archive.Save(context.WithoutCancel(ctx), result); err != nil {
			log.Warn("Failed to archive search", zap.Error(err))
		}
	}

	s.updateProgress(id, func(p *model.SearchProgress) {
		p.CurrentStep = model.StepDone
		p.CurrentBid = ""
	})
	log.Info("Search finished",
		zap.Int("total_count", result.TotalCount),
		zap.Int("items", len(items)),
		zap.Duration("elapsed", s.now().Sub(started)),
	)
	return result, nil
}

// Get returns a search from the cache, falling back to the archive.
func (s *Service) Get(ctx context.Context, id string) (*model.SearchResult, error) {
	if r, ok := s.Results.Get(id); ok {
		return r, nil
	}
	if s.Archive == nil {
		return nil, ErrNotFound
	}
	r, err := s.Archive.Get(ctx, id)
	if errors.Is(err, helper.ErrNotArchived) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Results.Put(id, r)
	return r, nil
}

// Progress returns a copy of the progress record of a search.
func (s *Service) Progress(id string) (model.SearchProgress, error) {
	p, ok := s.Progresses.Get(id)
	if !ok {
		return model.SearchProgress{}, ErrNotFound
	}
	p.Errors = slices.Clone(p.Errors)
	return p, nil
}

// Statistics aggregates a stored search.
func (s *Service) Statistics(ctx context.Context, id string) (model.SearchStatistics, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return model.SearchStatistics{}, err
	}
	return model.Statistics(r), nil
}

// Package lists the files of the search directory for export.
func (s *Service) Package(ctx context.Context, id string) ([]files.ZipEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Library.PlanDirArchive(id)
}

// History lists recent searches, newest first. Without an archive it lists the cached ones.
func (s *Service) History(ctx context.Context, limit int) ([]model.SearchSummary, error) {
	if s.Archive != nil {
		list, err := s.Archive.List(ctx, limit)
		if !errors.Is(err, helper.ErrNotArchived) {
			return list, err
		}
	}
	out := []model.SearchSummary{}
	for _, r := range s.Results.Values() {
		out = append(out, r.Summary())
	}
	slices.SortFunc(out, func(a, b model.SearchSummary) int { return b.Timestamp.Compare(a.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CachedCount is the number of results held in memory.
func (s *Service) CachedCount() int {
	return s.Results.Len()
}

func (s *Service) updateProgress(id string, fn func(p *model.SearchProgress)) {
	p, ok := s.Progresses.Get(id)
	if !ok {
		p = model.SearchProgress{SearchID: id, StartTime: s.now()}
	}
	fn(&p)
	s.Progresses.Put(id, p)
}

func (s *Service) addProgressError(id, msg string) {
	s.updateProgress(id, func(p *model.SearchProgress) { p.Errors = append(p.Errors, msg) })
}

func (s *Service) writeReport(r *model.SearchResult) (string, error) {
	report := model.SearchReport{
		SearchID:      r.SearchID,
		SearchKeyword: r.SearchParams.Keyword,
		SearchDate:    r.Timestamp,
		TotalBids:     len(r.Items),
		Results:       r.Items,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	name := fmt.Sprintf("search_report_%s_%s.json", reportKeyword(r.SearchParams.Keyword), r.SearchID)
	p := filepath.Join(s.Library.Dir(files.TypeReport), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return p, nil
}

func reportKeyword(keyword string) string {
	k := strings.ReplaceAll(files.SanitizeFilename(keyword), " ", "_")
	if strings.Trim(k, "._") == "" {
		return "search"
	}
	return k
}

// writeIndented stores the raw payload pretty-printed, or verbatim if it cannot be indented.
func writeIndented(path string, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
