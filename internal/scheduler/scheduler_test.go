package scheduler

import (
	"testing"

	"kydras/internal/poolmodel"
)

func healthyDrive(root string, free, total uint64, class poolmodel.DeviceClass) poolmodel.PoolDrive {
	return poolmodel.PoolDrive{
		RootPath:   root,
		FreeBytes:  free,
		TotalBytes: total,
		Class:      class,
		Tier:       poolmodel.TierFor(class),
		IOScore:    class.IOScore(),
		Health:     poolmodel.HealthHealthy,
	}
}

func TestRankFiltersUnhealthyDrives(t *testing.T) {
	drives := []poolmodel.PoolDrive{
		healthyDrive("/d1", 100, 100, poolmodel.ClassSSD),
		{RootPath: "/d2", Health: poolmodel.HealthCritical, FreeBytes: 100, TotalBytes: 100},
	}
	ranked := Rank(drives, poolmodel.PoolRule{}, false, 10)
	if len(ranked) != 1 || ranked[0].RootPath != "/d1" {
		t.Fatalf("got %+v", ranked)
	}
}

func TestRankFiltersInsufficientSpace(t *testing.T) {
	drives := []poolmodel.PoolDrive{
		healthyDrive("/d1", 5, 100, poolmodel.ClassSSD),
		healthyDrive("/d2", 1000, 1000, poolmodel.ClassSSD),
	}
	ranked := Rank(drives, poolmodel.PoolRule{}, false, 50)
	if len(ranked) != 1 || ranked[0].RootPath != "/d2" {
		t.Fatalf("got %+v", ranked)
	}
}

func TestRankUnknownFreeSpaceIsEligible(t *testing.T) {
	drives := []poolmodel.PoolDrive{healthyDrive("/d1", 0, 100, poolmodel.ClassSSD)}
	ranked := Rank(drives, poolmodel.PoolRule{}, false, 99999)
	if len(ranked) != 1 {
		t.Fatalf("expected drive with unknown free space to be eligible, got %+v", ranked)
	}
}

func TestRankTargetDriveAdvisoryFallback(t *testing.T) {
	drives := []poolmodel.PoolDrive{healthyDrive("/d1", 100, 100, poolmodel.ClassSSD)}
	rule := poolmodel.PoolRule{TargetDrive: "/does-not-exist"}
	ranked := Rank(drives, rule, true, 10)
	if len(ranked) != 1 {
		t.Fatalf("expected fallback to pre-filter set, got %+v", ranked)
	}
}

func TestRankMaxFileSizeExcludesOversized(t *testing.T) {
	drives := []poolmodel.PoolDrive{healthyDrive("/d1", 100, 100, poolmodel.ClassSSD)}
	rule := poolmodel.PoolRule{MaxFileSize: 10}
	ranked := Rank(drives, rule, true, 20)
	if len(ranked) != 0 {
		t.Fatalf("expected no eligible drives, got %+v", ranked)
	}
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	drives := []poolmodel.PoolDrive{
		healthyDrive("/slow", 50, 100, poolmodel.ClassHDD),
		healthyDrive("/fast", 90, 100, poolmodel.ClassNVMe),
	}
	ranked := Rank(drives, poolmodel.PoolRule{}, false, 1)
	if ranked[0].RootPath != "/fast" {
		t.Fatalf("expected /fast first, got %+v", ranked)
	}
}

// TestScoreMonotonicity: increasing a drive's free ratio, IO score, or
// health class never decreases its rank relative to an unchanged peer.
func TestScoreMonotonicity(t *testing.T) {
	base := healthyDrive("/base", 50, 100, poolmodel.ClassHDD)
	rule := poolmodel.PoolRule{}

	moreFree := base
	moreFree.FreeBytes = 90
	if Score(moreFree, rule, false, 0) < Score(base, rule, false, 0) {
		t.Fatal("increasing free ratio decreased score")
	}

	fasterIO := base
	fasterIO.IOScore = poolmodel.ClassNVMe.IOScore()
	if Score(fasterIO, rule, false, 0) < Score(base, rule, false, 0) {
		t.Fatal("increasing IO score decreased score")
	}

	betterHealth := base
	betterHealth.Health = poolmodel.HealthHealthy
	degraded := base
	degraded.Health = poolmodel.HealthWarning
	if Score(betterHealth, rule, false, 0) < Score(degraded, rule, false, 0) {
		t.Fatal("improving health decreased score")
	}
}
