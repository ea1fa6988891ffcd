package capture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openctrol/agent/internal/platform"
)

const dedupTolerancePx = 2

// mergeMonitors combines two independent enumeration sources and
// de-duplicates per the rule in the data model: two entries describe
// the same monitor iff their device names match case-insensitively or
// their top-left position and size match within a 2-pixel tolerance.
// The merged list is sorted primary-first, then ascending x, then
// ascending y, and IDs are reassigned to DISPLAY<n> in that order.
func mergeMonitors(a, b []platform.MonitorInfo) []platform.MonitorInfo {
	merged := make([]platform.MonitorInfo, 0, len(a)+len(b))
	merged = append(merged, a...)

	for _, cand := range b {
		if dup := findDup(merged, cand); dup == -1 {
			merged = append(merged, cand)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		mi, mj := merged[i], merged[j]
		if mi.Primary != mj.Primary {
			return mi.Primary
		}
		if mi.X != mj.X {
			return mi.X < mj.X
		}
		return mi.Y < mj.Y
	})

	for i := range merged {
		merged[i].ID = fmt.Sprintf("DISPLAY%d", i)
	}

	return merged
}

func findDup(existing []platform.MonitorInfo, cand platform.MonitorInfo) int {
	for i, e := range existing {
		if strings.EqualFold(e.Name, cand.Name) {
			return i
		}
		if closeEnough(e.X, cand.X) && closeEnough(e.Y, cand.Y) &&
			closeEnough(e.Width, cand.Width) && closeEnough(e.Height, cand.Height) {
			return i
		}
	}
	return -1
}

func closeEnough(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= dedupTolerancePx
}
