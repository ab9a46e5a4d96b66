// Package session holds the state of one user session: the input list, the
// output folder, the committed settings and the job controller.
package session

import (
	"context"
	"strings"
	"sync"

	"music-separator/internal/config"
	"music-separator/internal/domain"
	"music-separator/internal/filelist"
	"music-separator/internal/jobs"
	"music-separator/internal/separate"
)

// Sink receives every published job event in sequence order.
type Sink func(event jobs.Event)

// Session is shared by every front-end of one process.
type Session struct {
	files      *filelist.Collection
	settings   *config.SettingsStore
	controller *jobs.Controller
	events     *jobs.EventBus

	mu           sync.RWMutex
	outputFolder string
	sinks        []Sink

	// publishMu keeps bus order and sink order identical.
	publishMu sync.Mutex
}

// New creates a session with the given initial settings.
func New(routine separate.Routine, defaults domain.Settings) (*Session, error) {
	store, err := config.NewSettingsStore(defaults)
	if err != nil {
		return nil, err
	}

	s := &Session{
		files:    filelist.NewCollection(),
		settings: store,
		events:   jobs.NewEventBus(500),
	}
	s.controller = jobs.NewController(routine, s)
	return s, nil
}

// AddSink registers fn for all events published after the call.
func (s *Session) AddSink(fn Sink) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, fn)
}

// AddFiles appends audio files to the input list.
func (s *Session) AddFiles(paths []string) int {
	return s.files.Append(paths...)
}

// RemoveFiles removes input entries by position.
func (s *Session) RemoveFiles(positions []int) error {
	return s.files.RemoveAt(positions...)
}

// Files returns the input list.
func (s *Session) Files() []string {
	return s.files.List()
}

// SetOutputFolder replaces the output folder. An empty path means the picker
// was cancelled and keeps the current folder.
func (s *Session) SetOutputFolder(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputFolder = path
}

// OutputFolder returns the selected output folder.
func (s *Session) OutputFolder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputFolder
}

// Settings returns the committed settings.
func (s *Session) Settings() domain.Settings {
	return s.settings.Current()
}

// EditSettings runs fn on a working copy and commits it. The returned settings
// are the committed ones, unchanged when validation fails.
func (s *Session) EditSettings(fn func(edit *config.Edit)) (domain.Settings, error) {
	edit := s.settings.BeginEdit()
	if fn != nil {
		fn(edit)
	}
	err := s.settings.Commit(edit)
	return s.settings.Current(), err
}

// ReplaceSettings commits settings as a whole.
func (s *Session) ReplaceSettings(settings domain.Settings) (domain.Settings, error) {
	return s.EditSettings(func(edit *config.Edit) {
		edit.Settings = settings
	})
}

// Options snapshots the current inputs for a new job.
func (s *Session) Options() domain.JobOptions {
	return domain.JobOptions{
		Files:        s.files.List(),
		OutputFolder: s.OutputFolder(),
		Settings:     s.settings.Current(),
	}
}

// CanStart reports whether Start would pass its preconditions.
func (s *Session) CanStart() bool {
	return s.files.Len() > 0 && s.OutputFolder() != "" && !s.controller.IsRunning()
}

// Start launches a job over the current inputs.
func (s *Session) Start(ctx context.Context) (domain.Job, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	job, err := s.controller.Start(ctx, s.Options())
	if err != nil {
		return job, err
	}
	s.publishLocked(jobs.Event{
		JobID:   job.ID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.JobStatusRunning,
		Message: "Processing...",
	})
	return job, nil
}

// Stop cancels the running job and blocks until its routine has returned.
func (s *Session) Stop() {
	s.controller.Stop()
}

// CurrentJob returns the current job snapshot.
func (s *Session) CurrentJob() domain.Job {
	return s.controller.Current()
}

// IsRunning reports whether a job is running or stopping.
func (s *Session) IsRunning() bool {
	return s.controller.IsRunning()
}

// Events returns events with sequence greater than since.
func (s *Session) Events(since int64) []jobs.Event {
	return s.events.Since(since)
}

// JobProgress implements jobs.Observer.
func (s *Session) JobProgress(jobID string, percent int) {
	s.publish(jobs.ProgressEvent(jobID, percent))
}

// JobDone implements jobs.Observer.
func (s *Session) JobDone(outcome domain.Outcome) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	for _, event := range jobs.OutcomeEvents(outcome) {
		s.publishLocked(event)
	}
}

// publish stores one event and forwards it to every sink.
func (s *Session) publish(event jobs.Event) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.publishLocked(event)
}

func (s *Session) publishLocked(event jobs.Event) {
	published := s.events.Publish(event)

	s.mu.RLock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.RUnlock()

	for _, sink := range sinks {
		sink(published)
	}
}
