package disks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const lsblkOutput = `{
  "blockdevices": [
    {"name":"sda","kname":"sda","path":"/dev/sda","size":500107862016,"type":"disk","mountpoint":null,"fstype":null,
     "children":[
       {"name":"sda1","kname":"sda1","path":"/dev/sda1","size":536870912,"type":"part","mountpoint":"/boot/efi","fstype":"vfat"},
       {"name":"sda2","kname":"sda2","path":"/dev/sda2","size":"4294967296","type":"part","mountpoint":null,"fstype":"vfat"},
       {"name":"sda3","kname":"sda3","path":"/dev/sda3","size":495276023808,"type":"part","mountpoint":"/","fstype":"ext4"}
     ]}
  ]
}`

func TestParseLsblk(t *testing.T) {
	parts, err := parseLsblk([]byte(lsblkOutput))
	if err != nil {
		t.Fatalf("parseLsblk: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d partitions, want 3", len(parts))
	}
	if parts[0].Path != "/dev/sda1" || parts[0].FSType != "vfat" {
		t.Errorf("unexpected first partition: %+v", parts[0])
	}
	if !parts[0].MountedAt("/boot/efi") {
		t.Error("sda1 should report mounted at /boot/efi")
	}
	if parts[1].SizeBytes != 4294967296 {
		t.Errorf("string size parsed as %d", parts[1].SizeBytes)
	}
	if parts[2].MountedAt("/boot/efi") {
		t.Error("sda3 mount point confused")
	}
}

type fakeMounter struct {
	dirs     map[string]string // device path -> prepared mount dir
	mountErr error
	cleaned  []string
}

func (f *fakeMounter) MountTemp(_ context.Context, source, fstype string) (string, func() error, error) {
	if f.mountErr != nil {
		return "", nil, f.mountErr
	}
	dir, ok := f.dirs[source]
	if !ok {
		return "", nil, errors.New("unexpected mount of " + source)
	}
	return dir, func() error {
		f.cleaned = append(f.cleaned, source)
		return nil
	}, nil
}

func isFat(fs string) bool { return fs == "vfat" }

func collectOf(parts ...Partition) func(context.Context) ([]Partition, error) {
	return func(context.Context) ([]Partition, error) { return parts, nil }
}

func strPtr(s string) *string { return &s }

func TestProbeForFindsMarker(t *testing.T) {
	marked := t.TempDir()
	if err := os.WriteFile(filepath.Join(marked, "recovery.conf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	unmarked := t.TempDir()

	mounter := &fakeMounter{dirs: map[string]string{
		"/dev/sda1": unmarked,
		"/dev/sda2": marked,
	}}
	p := &Prober{
		Collect: collectOf(
			Partition{Path: "/dev/sda1", FSType: "vfat"},
			Partition{Path: "/dev/sda2", FSType: "vfat"},
			Partition{Path: "/dev/sda3", FSType: "ext4"},
		),
		Mounter: mounter,
	}

	var handled string
	err := p.ProbeFor(context.Background(), "recovery.conf", "/recovery", isFat, func(mp string) error {
		handled = mp
		return nil
	})
	if err != nil {
		t.Fatalf("ProbeFor: %v", err)
	}
	if handled != marked {
		t.Errorf("handler got %q, want %q", handled, marked)
	}
	// Both candidates were temp-mounted and both got unmounted,
	// including the one that matched.
	if len(mounter.cleaned) != 2 {
		t.Errorf("cleaned = %v, want both candidates", mounter.cleaned)
	}
}

func TestProbeForReusesExistingMount(t *testing.T) {
	p := &Prober{
		Collect: collectOf(
			Partition{Path: "/dev/sda2", FSType: "vfat", Mountpoint: strPtr("/recovery")},
		),
		Mounter: &fakeMounter{}, // would fail if any mount were attempted
	}

	var handled string
	err := p.ProbeFor(context.Background(), "recovery.conf", "/recovery", isFat, func(mp string) error {
		handled = mp
		return nil
	})
	if err != nil {
		t.Fatalf("ProbeFor: %v", err)
	}
	if handled != "/recovery" {
		t.Errorf("handler got %q, want /recovery", handled)
	}
}

func TestProbeForNoMatch(t *testing.T) {
	empty := t.TempDir()
	p := &Prober{
		Collect: collectOf(Partition{Path: "/dev/sda1", FSType: "vfat"}),
		Mounter: &fakeMounter{dirs: map[string]string{"/dev/sda1": empty}},
	}
	err := p.ProbeFor(context.Background(), "recovery.conf", "/recovery", isFat, func(string) error {
		t.Fatal("handler invoked with no marker present")
		return nil
	})
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestProbeForUnmountsAfterHandlerError(t *testing.T) {
	marked := t.TempDir()
	if err := os.WriteFile(filepath.Join(marked, "recovery.conf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	mounter := &fakeMounter{dirs: map[string]string{"/dev/sda2": marked}}
	p := &Prober{
		Collect: collectOf(Partition{Path: "/dev/sda2", FSType: "vfat"}),
		Mounter: mounter,
	}

	handlerErr := errors.New("sync failed")
	err := p.ProbeFor(context.Background(), "recovery.conf", "/recovery", isFat, func(string) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Errorf("err = %v, want handler error", err)
	}
	if len(mounter.cleaned) != 1 {
		t.Error("matched partition not unmounted after handler failure")
	}
}

func TestProbeForScanError(t *testing.T) {
	scanErr := errors.New("lsblk exploded")
	p := &Prober{
		Collect: func(context.Context) ([]Partition, error) { return nil, scanErr },
	}
	err := p.ProbeFor(context.Background(), "recovery.conf", "/recovery", isFat, func(string) error { return nil })
	if !errors.Is(err, scanErr) {
		t.Errorf("err = %v, want wrapped scan error", err)
	}
}
