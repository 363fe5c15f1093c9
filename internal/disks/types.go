package disks

// Partition is one block device row reported by lsblk. Discovered
// state only; nothing here is ever written back.
type Partition struct {
	Name       string  `json:"name"`
	KName      string  `json:"kname,omitempty"`
	Path       string  `json:"path,omitempty"`
	SizeBytes  int64   `json:"size"`
	Type       string  `json:"type"`
	Mountpoint *string `json:"mountpoint,omitempty"`
	FSType     string  `json:"fstype,omitempty"`
}

// MountedAt reports whether the partition is currently mounted at path.
func (p Partition) MountedAt(path string) bool {
	return p.Mountpoint != nil && *p.Mountpoint == path
}
