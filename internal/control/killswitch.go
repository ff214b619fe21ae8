package control

import (
	"os"
)

// KillSwitch is checked once per candidate (spec.md §4.H): if either the
// configured file exists or the env flag is set, intake stops and the
// runner drains in-flight work.
type KillSwitch struct {
	filePath string
	envVar   string
}

// NewKillSwitch builds a KillSwitch. Either field may be empty to disable
// that half of the check.
func NewKillSwitch(filePath, envVar string) *KillSwitch {
	return &KillSwitch{filePath: filePath, envVar: envVar}
}

// Tripped reports whether the kill switch is currently engaged.
func (k *KillSwitch) Tripped() bool {
	if k.filePath != "" {
		if _, err := os.Stat(k.filePath); err == nil {
			return true
		}
	}
	if k.envVar != "" {
		if v, ok := os.LookupEnv(k.envVar); ok && v != "" && v != "0" && v != "false" {
			return true
		}
	}
	return false
}
