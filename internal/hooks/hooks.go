// Package hooks holds the pre- and post-processing steps of the built-in
// algorithms. Each hook works only from its engine.HookContext: the subject
// and output folders, the scratch directory and the subprocess working
// directory.
package hooks

import (
	"github.com/zeebo/errs"

	"github.com/hexmeshworkshop/dds/internal/engine"
)

// Error is the error class of hook failures.
var Error = errs.Class("hook")

// Register installs every built-in hook into r.
func Register(r *engine.HookRegistry) {
	r.RegisterPre("extract_surface", refuseIfPresent("SURFACE_AND_VOLUME_MEDIT", "extract_surface+volume"))
	r.RegisterPre("extract_surface+volume", refuseIfPresent("SURFACE_MESH_OBJ", "extract_surface"))

	r.RegisterPre("evocube", evocubePre)
	r.RegisterPost("evocube", evocubePost)

	for _, algo := range []string{"mesh_stats", "surface_mesh_stats", "hex_mesh_stats", "labeling_stats"} {
		r.RegisterPost(algo, statsPost)
	}

	for algo, patterns := range debugFiles {
		r.RegisterPost(algo, debugPost(algo, patterns))
	}
}
