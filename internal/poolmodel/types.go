// Package poolmodel holds the in-memory data model: StoragePool, PoolDrive,
// PoolRule, and the persisted ReplicaRecord shape.
package poolmodel

import "time"

// DeviceClass is the observed kind of backing storage for a drive.
type DeviceClass string

const (
	ClassHDD       DeviceClass = "HDD"
	ClassSSD       DeviceClass = "SSD"
	ClassNVMe      DeviceClass = "NVMe"
	ClassNetwork   DeviceClass = "Network"
	ClassRemovable DeviceClass = "Removable"
)

// IOScore returns the class's base IO score: NVMe=3.0, SSD=2.0, HDD=1.0,
// Network=0.8, else=0.6.
func (c DeviceClass) IOScore() float64 {
	switch c {
	case ClassNVMe:
		return 3.0
	case ClassSSD:
		return 2.0
	case ClassHDD:
		return 1.0
	case ClassNetwork:
		return 0.8
	default:
		return 0.6
	}
}

// Tier is the coarse performance class derived from a drive's DeviceClass.
type Tier string

const (
	TierHot  Tier = "Hot"
	TierWarm Tier = "Warm"
	TierCold Tier = "Cold"
)

// TierFor derives the tier for a device class.
func TierFor(c DeviceClass) Tier {
	switch c {
	case ClassNVMe, ClassSSD:
		return TierHot
	case ClassHDD:
		return TierWarm
	default:
		return TierCold
	}
}

// HealthState is a drive's last-observed health.
type HealthState string

const (
	HealthUnknown  HealthState = "Unknown"
	HealthHealthy  HealthState = "Healthy"
	HealthWarning  HealthState = "Warning"
	HealthCritical HealthState = "Critical"
	HealthFailed   HealthState = "Failed"
)

// PoolDrive is a single filesystem root participating in a pool.
type PoolDrive struct {
	ID              string
	RootPath        string
	VolumeRoot      string
	DriveLetter     string
	Label           string
	TotalBytes      uint64
	FreeBytes       uint64
	Class           DeviceClass
	Health          HealthState
	Tier            Tier
	IOScore         float64
	LastHealthCheck time.Time
}

// PoolRule is a glob-scoped placement rule.
type PoolRule struct {
	Pattern          string
	TargetDrive      string // root path or drive letter, advisory
	DuplicationLevel int    // >=1, default 1
	PreferSSD        bool
	MaxFileSize      int64 // 0 means unbounded
	PreferredTier    Tier  // "" means unset
}

// EffectiveDuplication returns max(1, DuplicationLevel).
func (r PoolRule) EffectiveDuplication() int {
	if r.DuplicationLevel < 1 {
		return 1
	}
	return r.DuplicationLevel
}

// PoolType is an informational label for a pool's intended usage.
type PoolType string

const (
	PoolTypeJBOD        PoolType = "jbod"
	PoolTypeMirror      PoolType = "mirror"
	PoolTypePerformance PoolType = "performance"
	PoolTypeArchive     PoolType = "archive"
	PoolTypeCustom      PoolType = "custom"
)

// StoragePool is the logical namespace spread across a set of drives.
type StoragePool struct {
	ID         string
	Name       string
	Type       PoolType
	MountHint  string
	Drives     []PoolDrive
	Rules      []PoolRule
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReplicaRecord is the persisted row kept in the metadata index.
type ReplicaRecord struct {
	PoolID      string
	RelPath     string
	DriveRoot   string
	SizeBytes   int64
	SHA256      string // uppercase hex
	ModifiedUTC time.Time
}
