package routing

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, errors.New("allowlist: unsupported version")
	}
	if a.Entrypoints == nil {
		return Allowlist{}, errors.New("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		seen := map[string]bool{}
		for _, r := range ep.Routes {
			if strings.TrimSpace(r.Path) == "" {
				return Allowlist{}, errors.New("allowlist: empty path in entrypoint " + name)
			}
			if len(r.Methods) == 0 {
				return Allowlist{}, errors.New("allowlist: route without methods: " + r.Path)
			}
			for _, m := range r.Methods {
				if !knownHTTPMethod(m) {
					return Allowlist{}, errors.New("allowlist: unknown method " + m + " on " + r.Path)
				}
				key := m + " " + r.Path
				if seen[key] {
					return Allowlist{}, errors.New("allowlist: duplicate route " + key)
				}
				seen[key] = true
			}
		}
	}
	return a, nil
}

func knownHTTPMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}
