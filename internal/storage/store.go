// Package storage maps panel keys to their recording files.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/config"
	"github.com/audiolibrelab/soundboard/internal/wavfile"
)

// ErrInvalidKey is returned for keys outside the configured slot range
var ErrInvalidKey = errors.New("invalid key")

// KeyLetter returns the slot letter of a key: 0 is A, 1 is B, ...
func KeyLetter(key int) string {
	return string(rune('A' + key))
}

// Slots returns the deterministic file path of every key
func Slots(cfg config.StorageConfig) []string {
	paths := make([]string, cfg.Keys)
	for key := range paths {
		name := strings.Replace(cfg.FilePattern, "%c", KeyLetter(key), 1)
		paths[key] = filepath.Join(cfg.Directory, name)
	}
	return paths
}

// SlotInfo describes the file behind one key
type SlotInfo struct {
	Key      int           `json:"key" yaml:"key"`
	Letter   string        `json:"letter" yaml:"letter"`
	Path     string        `json:"path" yaml:"path"`
	Exists   bool          `json:"exists" yaml:"exists"`
	Size     int64         `json:"size,omitempty" yaml:"size,omitempty"`
	Format   audio.Format  `json:"format,omitempty" yaml:"format,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	ModTime  time.Time     `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
}

// Store gives keyed access to the recording directory
type Store struct {
	fs    afero.Fs
	dir   string
	paths []string
}

// NewStore creates a store on fs. A nil fs means the OS filesystem.
func NewStore(fs afero.Fs, cfg config.StorageConfig) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, dir: cfg.Directory, paths: Slots(cfg)}
}

// Fs returns the filesystem the store works on
func (s *Store) Fs() afero.Fs { return s.fs }

// Dir returns the recording directory
func (s *Store) Dir() string { return s.dir }

// Keys returns the number of slots
func (s *Store) Keys() int { return len(s.paths) }

// Path returns the file bound to key
func (s *Store) Path(key int) (string, error) {
	if key < 0 || key >= len(s.paths) {
		return "", fmt.Errorf("%w: %d (have %d keys)", ErrInvalidKey, key, len(s.paths))
	}
	return s.paths[key], nil
}

// KeyForPath returns the key bound to path, or -1
func (s *Store) KeyForPath(path string) int {
	clean := filepath.Clean(path)
	for key, p := range s.paths {
		if p == clean {
			return key
		}
	}
	return -1
}

// Exists reports whether key has a recording
func (s *Store) Exists(key int) bool {
	path, err := s.Path(key)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// Remove deletes the recording of key
func (s *Store) Remove(key int) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates the recording directory
func (s *Store) EnsureDir() error {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}
	return nil
}

// Info returns the details of the file behind key. A missing file is not an error.
func (s *Store) Info(key int) (SlotInfo, error) {
	path, err := s.Path(key)
	if err != nil {
		return SlotInfo{}, err
	}

	info := SlotInfo{Key: key, Letter: KeyLetter(key), Path: path}
	st, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return info, nil
		}
		return info, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	info.Exists = true
	info.Size = st.Size()
	info.ModTime = st.ModTime()

	header, err := wavfile.ReadInfo(s.fs, path)
	if err != nil {
		return info, err
	}
	info.Format = header.Format
	info.Duration = header.Duration()
	return info, nil
}

// List returns the details of every slot, skipping unreadable headers
func (s *Store) List() []SlotInfo {
	infos := make([]SlotInfo, 0, len(s.paths))
	for key := range s.paths {
		info, _ := s.Info(key)
		infos = append(infos, info)
	}
	return infos
}
