package bootstrap

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"music-separator/internal/accel"
	"music-separator/internal/config"
	"music-separator/internal/diagnostics"
	"music-separator/internal/domain"
	"music-separator/internal/filelist"
	"music-separator/internal/jobs"
	"music-separator/internal/logging"
	"music-separator/internal/separate"
	"music-separator/internal/session"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const probeTimeout = 10 * time.Second

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.wav;*.mp3;*.flac",
	},
}

// App wires the session, diagnostics, and UI runtime callbacks.
type App struct {
	Session     *session.Session
	Runtime     config.Runtime
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker

	mu         sync.Mutex
	runtimeCtx context.Context
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

// New builds the application with accelerator-based defaults and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	rt := config.LoadRuntime()
	if err := logging.Setup(rt.LogLevel, rt.LogFormat, os.Stderr); err != nil {
		return nil, errors.Wrap(err, "configure logging")
	}

	defaults := detectDefaults()
	sess, err := session.New(separate.NewProcess(rt.Python, rt.InferenceScript), defaults)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}

	checker := diagnostics.NewChecker()
	app := newApp(sess, rt, checker)
	app.assets = assets
	app.Diagnostics = checker.Run(rt, "")
	return app, nil
}

// newApp wires an App around an existing session.
func newApp(sess *session.Session, rt config.Runtime, checker *diagnostics.Checker) *App {
	jobCtx, cancel := context.WithCancel(context.Background())
	app := &App{
		Session:    sess,
		Runtime:    rt,
		checker:    checker,
		jobCtx:     jobCtx,
		cancelJobs: cancel,
	}
	sess.AddSink(app.emitEvent)
	return app
}

// detectDefaults probes the accelerator once and derives first-launch settings.
func detectDefaults() domain.Settings {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	info, err := accel.NewProber().Probe(ctx)
	if err != nil {
		log.WithError(err).Info("No accelerator detected, using CPU-safe defaults")
	}
	return config.DefaultSettings(info.MemoryGiB, info.Available)
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Music Separator",
		Width:       900,
		Height:      640,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for dialogs and push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown terminates a running inference process and drops the runtime context.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	cancel := a.cancelJobs
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns dependency checks for the current output folder.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Runtime, a.Session.OutputFolder())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings returns the committed settings.
func (a *App) GetSettings() domain.Settings {
	return a.Session.Settings()
}

// SaveSettings validates and commits settings. On error the committed settings
// are returned unchanged together with the first offending field.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	return a.Session.ReplaceSettings(settings)
}

// GetInputFiles returns the input list.
func (a *App) GetInputFiles() []string {
	return a.Session.Files()
}

// PickInputFiles opens a native multi-file dialog and appends the selection.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio files",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open file dialog")
	}

	return a.AddInputFiles(paths), nil
}

// AddInputFiles appends dropped or typed paths and returns the input list.
func (a *App) AddInputFiles(paths []string) []string {
	trimmed := make([]string, 0, len(paths))
	for _, path := range paths {
		if path = strings.TrimSpace(path); path != "" {
			trimmed = append(trimmed, path)
		}
	}
	a.Session.AddFiles(trimmed)
	return a.Session.Files()
}

// RemoveInputFiles removes the selected rows and returns the input list.
func (a *App) RemoveInputFiles(positions []int) ([]string, error) {
	if err := a.Session.RemoveFiles(positions); err != nil {
		return a.Session.Files(), err
	}
	return a.Session.Files(), nil
}

// DescribeInputFile returns the display metadata of one input file.
func (a *App) DescribeInputFile(path string) (filelist.Tags, error) {
	return filelist.ReadTags(path)
}

// PickOutputDirectory opens a native directory picker. Cancelling keeps the
// current folder.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output folder",
	})
	if err != nil {
		return "", errors.Wrap(err, "open directory dialog")
	}

	a.Session.SetOutputFolder(path)
	return a.Session.OutputFolder(), nil
}

// GetOutputFolder returns the selected output folder.
func (a *App) GetOutputFolder() string {
	return a.Session.OutputFolder()
}

// OpenOutputFolder opens the given path (or the selected output folder) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Session.OutputFolder()
	}
	if target == "" {
		return errors.New("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return errors.Wrap(err, "resolve output path")
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// CanStart reports whether the start button should be enabled.
func (a *App) CanStart() bool {
	return a.Session.CanStart()
}

// StartSeparation starts a job over the current input list and settings.
func (a *App) StartSeparation() (domain.Job, error) {
	a.mu.Lock()
	ctx := a.jobCtx
	a.mu.Unlock()
	return a.Session.Start(ctx)
}

// StopSeparation cancels the running job and returns once it has ended.
func (a *App) StopSeparation() domain.Job {
	a.Session.Stop()
	return a.Session.CurrentJob()
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Session.CurrentJob()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Session.Events(sinceSeq)
}

// emitEvent pushes one published event to the frontend.
func (a *App) emitEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", event)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, errors.New("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "launch file manager")
	}
	return nil
}
