package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smartsave/gateway/internal/domain"
)

// SupervisorConfig holds the settings used to launch and probe the bridge process
type SupervisorConfig struct {
	Interpreter   string        // e.g. "python3"
	Host          string        // address the bridge listens on
	Port          int           // port the bridge listens on
	BaseURL       string        // overrides Host/Port when set
	Region        string        // default postcode handed to the bridge
	HealthPath    string        // defaults to "/health"
	HealthTimeout time.Duration // per attempt
	ShutdownGrace time.Duration // time allowed between interrupt and kill

	// Assets holds the bridge script; defaults to the embedded assets.
	Assets fs.FS
	// Resource is the script path inside Assets; defaults to DefaultResource.
	Resource string
	// Output receives the child's stdout and stderr; defaults to os.Stdout.
	Output io.Writer
}

// ProcessHandle references the spawned bridge process and its extracted script
type ProcessHandle struct {
	Cmd        *exec.Cmd
	ScriptPath string

	available atomic.Bool
	exited    chan struct{}
	exitErr   error
}

// Available reports whether the startup health check succeeded
func (h *ProcessHandle) Available() bool {
	return h != nil && h.available.Load()
}

// Launched reports whether the process was started
func (h *ProcessHandle) Launched() bool {
	return h != nil && h.Cmd != nil
}

// Alive reports whether a launched process has not exited yet
func (h *ProcessHandle) Alive() bool {
	if !h.Launched() {
		return false
	}
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// Supervisor extracts, launches, probes and tears down the bridge process
type Supervisor struct {
	config     SupervisorConfig
	logger     *zap.Logger
	httpClient *http.Client

	mu       sync.Mutex
	handle   *ProcessHandle
	shutdown bool
	stopping atomic.Bool
}

// NewSupervisor creates a supervisor. Nothing is launched until Start.
func NewSupervisor(cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if cfg.Assets == nil {
		cfg.Assets = embeddedAssets
	}
	if cfg.Resource == "" {
		cfg.Resource = DefaultResource
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Supervisor{
		config:     cfg,
		logger:     logger.With(zap.String("component", "bridge_supervisor")),
		httpClient: &http.Client{Timeout: cfg.HealthTimeout},
	}
}

// BaseURL returns the root URL the bridge serves on
func (s *Supervisor) BaseURL() string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL
	}
	return "http://" + net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Handle returns the current process handle, or nil before Start
func (s *Supervisor) Handle() *ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Start extracts the embedded bridge script to a temporary file and launches it.
// A missing resource is the only error returned; a launch failure is logged and
// leaves the backend unavailable.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return fmt.Errorf("%w: supervisor already shut down", domain.ErrBridgeUnavailable)
	}
	if s.handle != nil {
		return nil
	}

	scriptPath, err := s.extract()
	if err != nil {
		return err
	}
	handle := &ProcessHandle{ScriptPath: scriptPath, exited: make(chan struct{})}
	s.handle = handle

	cmd := exec.Command(s.config.Interpreter, scriptPath,
		"--host", s.config.Host,
		"--port", strconv.Itoa(s.config.Port),
		"--postcode", s.config.Region,
	)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "LANG=C.UTF-8")
	cmd.Stdout = s.config.Output
	cmd.Stderr = s.config.Output

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed to launch bridge process",
			zap.String("interpreter", s.config.Interpreter),
			zap.String("script", scriptPath),
			zap.Error(err))
		return nil
	}

	handle.Cmd = cmd
	go s.reap(handle)

	s.logger.Info("bridge process launched",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("script", scriptPath),
		zap.String("base_url", s.BaseURL()))
	return nil
}

// extract copies the bridge resource to a private temporary file
func (s *Supervisor) extract() (string, error) {
	data, err := fs.ReadFile(s.config.Assets, s.config.Resource)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrBridgeResourceMissing, s.config.Resource)
		}
		return "", fmt.Errorf("read bridge resource %s: %w", s.config.Resource, err)
	}

	f, err := os.CreateTemp("", "smartsave_bridge_*.py")
	if err != nil {
		return "", fmt.Errorf("create temporary bridge script: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temporary bridge script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temporary bridge script: %w", err)
	}

	s.logger.Debug("bridge script extracted", zap.String("path", path))
	return path, nil
}

func (s *Supervisor) reap(h *ProcessHandle) {
	h.exitErr = h.Cmd.Wait()
	close(h.exited)

	if !s.stopping.Load() {
		s.logger.Warn("bridge process exited unexpectedly", zap.Error(h.exitErr))
	}
}

// WaitUntilHealthy polls the health endpoint until it answers 2xx, returning
// false once maxAttempts probes have failed. It blocks the caller.
func (s *Supervisor) WaitUntilHealthy(ctx context.Context, maxAttempts int, interval time.Duration) bool {
	h := s.Handle()
	if !h.Launched() {
		s.logger.Warn("bridge process not launched, skipping health check")
		return false
	}

	url := s.BaseURL() + s.config.HealthPath
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.probe(ctx, url)
		if err == nil {
			h.available.Store(true)
			s.logger.Info("bridge is healthy", zap.Int("attempt", attempt))
			return true
		}
		s.logger.Debug("bridge health probe failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			s.logger.Warn("bridge health check interrupted", zap.Error(ctx.Err()))
			return false
		case <-h.exited:
			s.logger.Warn("bridge process exited during health check", zap.Error(h.exitErr))
			return false
		case <-time.After(interval):
		}
	}

	s.logger.Warn("bridge did not become healthy",
		zap.Int("attempts", maxAttempts),
		zap.Duration("interval", interval))
	return false
}

func (s *Supervisor) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Available reports the result of the startup health check
func (s *Supervisor) Available() bool {
	return s.Handle().Available()
}

// Shutdown interrupts the bridge process, kills it if it outlives the grace
// period, and removes the extracted script. Calling it again is a no-op.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopping.Store(true)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	h.available.Store(false)

	if h.Alive() {
		s.stopProcess(ctx, h)
	}

	if h.ScriptPath != "" {
		if err := os.Remove(h.ScriptPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temporary bridge script",
				zap.String("path", h.ScriptPath), zap.Error(err))
		}
	}

	s.logger.Info("bridge supervisor shut down")
	return nil
}

func (s *Supervisor) stopProcess(ctx context.Context, h *ProcessHandle) {
	if err := h.Cmd.Process.Signal(os.Interrupt); err != nil {
		s.kill(h)
		return
	}

	timer := time.NewTimer(s.config.ShutdownGrace)
	defer timer.Stop()

	select {
	case <-h.exited:
		return
	case <-timer.C:
		s.logger.Warn("bridge process ignored interrupt, killing", zap.Duration("grace", s.config.ShutdownGrace))
	case <-ctx.Done():
	}
	s.kill(h)
}

func (s *Supervisor) kill(h *ProcessHandle) {
	if err := h.Cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to kill bridge process", zap.Error(err))
		return
	}
	select {
	case <-h.exited:
	case <-time.After(s.config.ShutdownGrace):
		s.logger.Warn("bridge process did not exit after kill")
	}
}
