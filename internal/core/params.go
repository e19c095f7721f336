package core

import (
	"encoding/json"
	"os"
	"sync"
)

// SystemParams is the read-once NCUBE_PARAMS JSON blob: the default caller
// identity plus any other string parameters the deployment wants available
// to the core without threading them through every call.
type SystemParams struct {
	User   string            `json:"user"`
	Extra  map[string]string `json:"-"`
	raw    map[string]json.RawMessage
	loaded bool
}

var (
	paramsOnce sync.Once
	params     SystemParams
)

// Params returns the process's NCUBE_PARAMS, parsed and cached on first use.
// A missing or empty environment variable yields the defaults: User "admin"
// (matching the bootstrap seeding user) and an empty Extra map.
func Params() SystemParams {
	paramsOnce.Do(func() {
		params = parseParams(os.Getenv("NCUBE_PARAMS"))
	})
	return params
}

func parseParams(raw string) SystemParams {
	p := SystemParams{User: "admin", Extra: map[string]string{}}
	if raw == "" {
		return p
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return p
	}
	if u, ok := m["user"]; ok {
		var s string
		if json.Unmarshal(u, &s) == nil && s != "" {
			p.User = s
		}
	}
	for k, v := range m {
		if k == "user" {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			p.Extra[k] = s
		}
	}
	return p
}

// resetParamsForTest clears the cached NCUBE_PARAMS so tests can exercise
// parseParams under different environment values.
func resetParamsForTest() {
	paramsOnce = sync.Once{}
}
