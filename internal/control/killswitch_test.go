package control

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKillSwitchTripsOnFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kill")

	k := NewKillSwitch(path, "")
	if k.Tripped() {
		t.Fatalf("expected kill switch untripped before file exists")
	}

	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("failed to create kill file: %v", err)
	}
	if !k.Tripped() {
		t.Fatalf("expected kill switch tripped once file exists")
	}
}

func TestKillSwitchTripsOnEnv(t *testing.T) {
	k := NewKillSwitch("", "TEST_KILL_SWITCH")
	if k.Tripped() {
		t.Fatalf("expected kill switch untripped with env unset")
	}

	t.Setenv("TEST_KILL_SWITCH", "1")
	if !k.Tripped() {
		t.Fatalf("expected kill switch tripped once env set")
	}
}

func TestKillSwitchIgnoresFalsyEnv(t *testing.T) {
	k := NewKillSwitch("", "TEST_KILL_SWITCH_FALSY")
	t.Setenv("TEST_KILL_SWITCH_FALSY", "0")
	if k.Tripped() {
		t.Fatalf("expected kill switch to treat \"0\" as untripped")
	}
}
