package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Tuning is the operator-editable overlay for organization behavior.
// Fields are pointers so an absent key leaves the running value alone.
type Tuning struct {
	DebounceDelayMS   *int `yaml:"debounce_delay_ms"`
	OrganizeThreshold *int `yaml:"organize_threshold"`
	BatchSize         *int `yaml:"batch_size"`
}

// LoadTuning reads the overlay file; a missing file is not an error
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tuning{}, nil
		}
		return nil, err
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Apply overlays the tuning onto current values and returns the result
func (t *Tuning) Apply(delay time.Duration, threshold, batchSize int) (time.Duration, int, int) {
	if t.DebounceDelayMS != nil && *t.DebounceDelayMS > 0 {
		delay = time.Duration(*t.DebounceDelayMS) * time.Millisecond
	}
	if t.OrganizeThreshold != nil && *t.OrganizeThreshold > 0 {
		threshold = *t.OrganizeThreshold
	}
	if t.BatchSize != nil && *t.BatchSize > 0 {
		batchSize = *t.BatchSize
	}
	return delay, threshold, batchSize
}

// WatchTuning watches the overlay file and calls onChange with each
// successfully parsed revision. It watches the parent directory because
// editors replace files rather than writing them in place.
func WatchTuning(path string, logger *zap.Logger, onChange func(*Tuning)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				tuning, err := LoadTuning(path)
				if err != nil {
					logger.Warn("Ignoring unreadable tuning file",
						zap.String("path", path),
						zap.Error(err),
					)
					continue
				}
				logger.Info("Tuning file reloaded", zap.String("path", path))
				onChange(tuning)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Tuning watcher error", zap.Error(err))
			}
		}
	}()

	return watcher.Close, nil
}
