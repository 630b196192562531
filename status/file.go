package status

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const (
	// ExtPlain is used for status made of plain structured data.
	ExtPlain = "cfg"
	// ExtArray is used when the status holds numeric arrays.
	ExtArray = "dat"

	denseTag  = "gonum_dense"
	vectorTag = "gonum_vector"
)

// FileStore keeps one yaml file per module under Dir, named
// status-<name>_<base>_<class>.<ext>.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file the key is stored in for the given extension.
func (s *FileStore) Path(key Key, ext string) string {
	class := strings.ReplaceAll(key.Class, string(os.PathSeparator), ".")
	name := fmt.Sprintf("status-%s_%s_%s.%s", key.Name, key.Base, class, ext)
	return filepath.Join(s.Dir, name)
}

func (s *FileStore) Load(key Key) (map[string]any, error) {
	for _, ext := range []string{ExtArray, ExtPlain} {
		raw, err := os.ReadFile(s.Path(key, ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read status %s: %w", key, err)
		}
		out := map[string]any{}
		if err := yaml.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		for k, v := range out {
			dv, err := decodeArrays(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %s: %v", ErrCorrupt, key, k, err)
			}
			out[k] = dv
		}
		return out, nil
	}
	return map[string]any{}, nil
}

func (s *FileStore) Save(key Key, data map[string]any) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	hasArrays := false
	doc := make(map[string]any, len(data))
	for k, v := range data {
		ev, arr, err := encodeArrays(v)
		if err != nil {
			return fmt.Errorf("encode status %s.%s: %w", key, k, err)
		}
		hasArrays = hasArrays || arr
		doc[k] = ev
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", key, err)
	}

	ext, stale := ExtPlain, ExtArray
	if hasArrays {
		ext, stale = ExtArray, ExtPlain
	}
	if err := writeFile(s.Path(key, ext), raw); err != nil {
		return fmt.Errorf("write status %s: %w", key, err)
	}
	if err := os.Remove(s.Path(key, stale)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale status %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Exists(key Key) bool {
	for _, ext := range []string{ExtArray, ExtPlain} {
		if _, err := os.Stat(s.Path(key, ext)); err == nil {
			return true
		}
	}
	return false
}

func (s *FileStore) Remove(key Key) error {
	for _, ext := range []string{ExtArray, ExtPlain} {
		if err := os.Remove(s.Path(key, ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// writeFile replaces path through a rename so readers never see a partial
// document.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeArrays(v any) (any, bool, error) {
	switch x := v.(type) {
	case *mat.Dense:
		b, err := x.MarshalBinary()
		if err != nil {
			return nil, false, err
		}
		return map[string]any{denseTag: base64.StdEncoding.EncodeToString(b)}, true, nil
	case *mat.VecDense:
		b, err := x.MarshalBinary()
		if err != nil {
			return nil, false, err
		}
		return map[string]any{vectorTag: base64.StdEncoding.EncodeToString(b)}, true, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		found := false
		for k, item := range x {
			ev, arr, err := encodeArrays(item)
			if err != nil {
				return nil, false, err
			}
			found = found || arr
			out[k] = ev
		}
		return out, found, nil
	case []any:
		out := make([]any, len(x))
		found := false
		for i, item := range x {
			ev, arr, err := encodeArrays(item)
			if err != nil {
				return nil, false, err
			}
			found = found || arr
			out[i] = ev
		}
		return out, found, nil
	}
	return v, false, nil
}

func decodeArrays(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if enc, ok := x[denseTag].(string); ok {
				b, err := base64.StdEncoding.DecodeString(enc)
				if err != nil {
					return nil, err
				}
				var m mat.Dense
				if err := m.UnmarshalBinary(b); err != nil {
					return nil, err
				}
				return &m, nil
			}
			if enc, ok := x[vectorTag].(string); ok {
				b, err := base64.StdEncoding.DecodeString(enc)
				if err != nil {
					return nil, err
				}
				var vec mat.VecDense
				if err := vec.UnmarshalBinary(b); err != nil {
					return nil, err
				}
				return &vec, nil
			}
		}
		for k, item := range x {
			dv, err := decodeArrays(item)
			if err != nil {
				return nil, err
			}
			x[k] = dv
		}
		return x, nil
	case []any:
		for i, item := range x {
			dv, err := decodeArrays(item)
			if err != nil {
				return nil, err
			}
			x[i] = dv
		}
		return x, nil
	}
	return v, nil
}
