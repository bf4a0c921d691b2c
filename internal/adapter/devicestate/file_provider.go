package devicestate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// fileState is the JSON layout written by the platform agent
type fileState struct {
	Connectivity   string `json:"connectivity"`
	BatteryPercent *int   `json:"battery_percent"`
	Charging       bool   `json:"charging"`
}

// FileProvider reads device state from a JSON file kept current by a platform agent.
// Example: {"connectivity":"wifi","battery_percent":64,"charging":false}
type FileProvider struct {
	path   string
	logger *zap.Logger
}

// Ensure FileProvider implements port.DeviceStateProvider
var _ port.DeviceStateProvider = (*FileProvider)(nil)

// NewFileProvider creates a provider for the file at path
func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	return &FileProvider{path: path, logger: logger}
}

// Current reads and parses the state file
func (p *FileProvider) Current(ctx context.Context) (domain.DeviceState, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return domain.DeviceState{}, fmt.Errorf("failed to read device state: %w", err)
	}
	return parseState(data)
}

func parseState(data []byte) (domain.DeviceState, error) {
	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		return domain.DeviceState{}, fmt.Errorf("failed to parse device state: %w", err)
	}

	state := domain.DeviceState{
		Connectivity:   domain.ParseConnectivity(fs.Connectivity),
		BatteryPercent: 100,
		IsCharging:     fs.Charging,
	}
	if fs.BatteryPercent != nil {
		b := *fs.BatteryPercent
		if b < 0 {
			b = 0
		}
		if b > 100 {
			b = 100
		}
		state.BatteryPercent = b
	}
	return state, nil
}

// Watch emits a reading each time the file is written or replaced.
// The parent directory is watched so atomic renames are seen.
func (p *FileProvider) Watch(ctx context.Context) (<-chan domain.DeviceState, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan domain.DeviceState, 1)
	name := filepath.Clean(p.path)

	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				state, err := p.Current(ctx)
				if err != nil {
					// Writers may leave the file half-written; the next event retries
					p.logger.Debug("device state unreadable", zap.String("path", p.path), zap.Error(err))
					continue
				}

				select {
				case out <- state:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("device state watcher error", zap.Error(err))
			}
		}
	}()

	return out, nil
}
