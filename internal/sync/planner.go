package sync

import (
	"sort"

	"github.com/schaermu/texsyncd/internal/mirror"
)

// BuildPlan computes the minimal download/delete plan that converges
// the local mirror onto the remote manifest.
//
// Per manifest entry: a local record with the same canonical path and
// hash (in either overlay state) needs no action; a hash mismatch
// queues a download preserving the record's current overlay state; an
// absent path queues an enabled download. Local records without a
// manifest entry have their actual path queued for deletion, whatever
// their overlay state.
func BuildPlan(manifest map[string]string, local map[string]mirror.Record) Plan {
	var plan Plan

	for path, remoteHash := range manifest {
		if mirror.ShouldSkipPath(path) {
			continue
		}

		rec, ok := local[path]
		if !ok {
			plan.Downloads = append(plan.Downloads, Download{Path: path})
			continue
		}
		if rec.Hash == remoteHash {
			continue
		}
		plan.Downloads = append(plan.Downloads, Download{Path: path, Disabled: rec.Disabled})
	}

	for path, rec := range local {
		if _, ok := manifest[path]; !ok {
			plan.Deletes = append(plan.Deletes, rec.ActualPath)
		}
	}

	// Map iteration order is random; keep plans deterministic
	sort.Slice(plan.Downloads, func(i, j int) bool { return plan.Downloads[i].Path < plan.Downloads[j].Path })
	sort.Strings(plan.Deletes)

	return plan
}
