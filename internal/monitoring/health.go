package monitoring

import (
	"github.com/roach88/modelops/internal/fsutil"
	"github.com/roach88/modelops/internal/registry"
)

// Health is a readiness snapshot of the registry.
type Health struct {
	Status            string  `json:"status"`
	ModelLoaded       bool    `json:"model_loaded"`
	RegistryAvailable bool    `json:"registry_available"`
	LatestVersion     *string `json:"latest_version"`
}

// Probe reports "ok" when the latest version's artifacts are on disk and
// "degraded" otherwise. It never fails: lookup errors are folded into the
// snapshot.
func Probe(reg *registry.Registry) Health {
	h := Health{Status: "degraded", RegistryAvailable: fsutil.IsDir(reg.Dir())}
	latest, err := reg.LatestVersion()
	if err != nil {
		return h
	}
	h.LatestVersion = &latest
	if _, err := reg.ResolvePath(latest); err == nil {
		h.ModelLoaded = true
		h.Status = "ok"
	}
	return h
}
