package remote

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

type NamesResponse struct {
	Modules []string `json:"modules"`
}

type StateResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type AppDataResponse struct {
	Name       string `json:"name"`
	HasAppData bool   `json:"hasAppData"`
}

// Instance is the wire form of a shared module.
type Instance struct {
	Name       string     `json:"name"`
	Base       string     `json:"base"`
	Class      string     `json:"class"`
	Interfaces []string   `json:"interfaces"`
	ByValue    bool       `json:"byValue"`
	Attributes Attributes `json:"attributes"`
}

type Attributes struct {
	Options map[string]any `json:"options"`
	Status  map[string]any `json:"status"`
	Values  map[string]any `json:"values,omitempty"`
}

// AppInfo is the application handle of the namespace service.
type AppInfo struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Uptime  time.Duration `json:"uptime"`
}

type NamespaceResponse struct {
	App     AppInfo             `json:"app"`
	Modules map[string]Instance `json:"modules"`
}

// plainMap converts values that do not serialise as JSON into plain
// structures. Matrices become row slices.
func plainMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case *mat.VecDense:
		if x == nil {
			return nil
		}
		return mat.Col(nil, 0, x)
	case *mat.Dense:
		if x == nil {
			return nil
		}
		return rows(x)
	case mat.Matrix:
		return rows(x)
	case map[string]any:
		return plainMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

func rows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
