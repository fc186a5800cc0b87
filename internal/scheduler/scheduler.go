// Package scheduler implements weighted placement ranking across a pool's
// drives. The scoring function is exposed as a pure routine over (drive,
// rule, size) so the rebalancer can reuse it for eviction ranking without
// constructing throwaway pools.
package scheduler

import (
	"sort"
	"strings"

	"kydras/internal/poolmodel"
)

// Rank filters and orders drives by descending placement suitability for a
// file of the given size under the (optional) resolved rule. Ties are
// broken by the drives' original order.
func Rank(drives []poolmodel.PoolDrive, rule poolmodel.PoolRule, hasRule bool, size int64) []poolmodel.PoolDrive {
	eligible := filter(drives, rule, hasRule, size)

	scored := make([]scoredDrive, len(eligible))
	for i, d := range eligible {
		scored[i] = scoredDrive{drive: d, order: i, score: Score(d, rule, hasRule, size)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]poolmodel.PoolDrive, len(scored))
	for i, s := range scored {
		out[i] = s.drive
	}
	return out
}

type scoredDrive struct {
	drive poolmodel.PoolDrive
	order int
	score float64
}

// filter applies four ordered filtering steps: health, free space,
// advisory target-drive, and max file size.
func filter(drives []poolmodel.PoolDrive, rule poolmodel.PoolRule, hasRule bool, size int64) []poolmodel.PoolDrive {
	var healthy []poolmodel.PoolDrive
	for _, d := range drives {
		if d.Health == poolmodel.HealthHealthy {
			healthy = append(healthy, d)
		}
	}

	var spaced []poolmodel.PoolDrive
	want := size
	if want < 0 {
		want = 0
	}
	for _, d := range healthy {
		if d.FreeBytes == 0 || d.FreeBytes > uint64(want) {
			spaced = append(spaced, d)
		}
	}

	preFilter := spaced
	if hasRule && rule.TargetDrive != "" {
		var targeted []poolmodel.PoolDrive
		for _, d := range spaced {
			if strings.EqualFold(d.RootPath, rule.TargetDrive) || strings.EqualFold(d.DriveLetter, rule.TargetDrive) {
				targeted = append(targeted, d)
			}
		}
		if len(targeted) > 0 {
			spaced = targeted
		} else {
			spaced = preFilter // target is advisory: fall back when nothing matches
		}
	}

	if hasRule && rule.MaxFileSize > 0 && size > rule.MaxFileSize {
		return nil
	}

	return spaced
}

// Score computes a drive's placement suitability for a file of the given
// size under the (optional) resolved rule, blending free-space ratio, I/O
// class, and health under fixed weights, then applying tier/SSD preference
// multipliers. It is exported so the rebalancer can rank an arbitrary set
// of existing holders for eviction using the same weights.
func Score(d poolmodel.PoolDrive, rule poolmodel.PoolRule, hasRule bool, size int64) float64 {
	spaceRatio := 0.5
	if d.TotalBytes > 0 {
		spaceRatio = float64(d.FreeBytes) / float64(d.TotalBytes)
	}

	ioNorm := d.IOScore / 3.0

	var healthW float64
	switch d.Health {
	case poolmodel.HealthHealthy:
		healthW = 1.0
	case poolmodel.HealthWarning:
		healthW = 0.6
	case poolmodel.HealthCritical:
		healthW = 0.2
	default:
		healthW = 0.5
	}

	base := 0.45*spaceRatio + 0.35*ioNorm + 0.10*healthW

	tierMult := 1.0
	if hasRule && rule.PreferredTier != "" {
		switch {
		case d.Tier == rule.PreferredTier:
			tierMult = 1.2
		case rule.PreferredTier == poolmodel.TierHot && d.Tier == poolmodel.TierWarm:
			tierMult = 1.0
		default:
			tierMult = 0.8
		}
	}

	ssdMult := 1.0
	if hasRule && rule.PreferSSD && (d.Class == poolmodel.ClassSSD || d.Class == poolmodel.ClassNVMe) {
		ssdMult = 1.1
	}

	return base * tierMult * ssdMult
}
