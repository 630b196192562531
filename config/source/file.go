package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skekre98/modrig/config"
)

// FileSource loads configuration files from a directory.
//
// The base file is <BaseName>.yaml, .yml or .toml (first found wins). When
// Profile is set, <BaseName>.<Profile>.<ext> is deep-merged on top of it if
// present.
//
//	configs/
//	  application.yaml
//	  application.lab.toml
type FileSource struct {
	BasePath string
	// BaseName defaults to "application".
	BaseName string
	Profile  string
}

var extensions = []string{".yaml", ".yml", ".toml"}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) baseName() string {
	if f.BaseName == "" {
		return "application"
	}
	return f.BaseName
}

// Load returns fs.ErrNotExist when the base file is missing.
func (f *FileSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := findFile(f.BasePath, f.baseName())
	if base == "" {
		return nil, fmt.Errorf("%s in %s: %w", f.baseName(), f.BasePath, fs.ErrNotExist)
	}
	data, err := readFile(base)
	if err != nil {
		return nil, err
	}
	if f.Profile != "" {
		if overlay := findFile(f.BasePath, f.baseName()+"."+f.Profile); overlay != "" {
			od, err := readFile(overlay)
			if err != nil {
				return nil, err
			}
			config.Merge(data, od)
		}
	}
	return data, nil
}

// Watch reports writes, creations and renames of the configuration files.
func (f *FileSource) Watch(ctx context.Context, ch chan<- config.Event) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(f.BasePath); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !f.relevant(ev) {
					continue
				}
				select {
				case ch <- config.Event{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (f *FileSource) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !isConfigExt(ext) {
		return false
	}
	return stem == f.baseName() || (f.Profile != "" && stem == f.baseName()+"."+f.Profile)
}

func isConfigExt(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func findFile(dir, basename string) string {
	for _, ext := range extensions {
		path := filepath.Join(dir, basename+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func readFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// errNoWatch is shared by sources whose data cannot change at runtime.
var errNoWatch = config.ErrWatchUnsupported
