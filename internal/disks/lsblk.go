package disks

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Daasin/upgrade/pkg/shell"
)

type lsblkJSON struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	KName      string        `json:"kname"`
	Path       string        `json:"path"`
	Size       any           `json:"size"`
	Type       string        `json:"type"`
	Mountpoint *string       `json:"mountpoint"`
	FSType     string        `json:"fstype"`
	Children   []lsblkDevice `json:"children"`
}

func parseSizeToBytes(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Collect enumerates every partition on every attached disk.
func Collect(ctx context.Context) ([]Partition, error) {
	args := []string{"-J", "-b", "-o", "NAME,KNAME,PATH,SIZE,TYPE,MOUNTPOINT,FSTYPE"}
	res, err := shell.Run(ctx, 5*time.Second, "lsblk", args...)
	if err != nil {
		return nil, err
	}
	return parseLsblk(res.Stdout)
}

func parseLsblk(out []byte) ([]Partition, error) {
	var tree lsblkJSON
	if err := json.Unmarshal(out, &tree); err != nil {
		return nil, err
	}
	parts := []Partition{}
	var walk func(d lsblkDevice)
	walk = func(d lsblkDevice) {
		if d.Type == "part" {
			parts = append(parts, Partition{
				Name:       d.Name,
				KName:      d.KName,
				Path:       d.Path,
				SizeBytes:  parseSizeToBytes(d.Size),
				Type:       d.Type,
				Mountpoint: d.Mountpoint,
				FSType:     d.FSType,
			})
		}
		for _, c := range d.Children {
			walk(c)
		}
	}
	for _, d := range tree.Blockdevices {
		walk(d)
	}
	return parts, nil
}
