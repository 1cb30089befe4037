// Package toolchain locates the FreeSurfer installation the workers call into
// and preflights the tools they need. A missing toolchain is reported, never
// fatal: workers fail per subject and the run keeps going.
package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultBinDir is probed last, after the explicit override and the
// FreeSurfer environment variables.
const DefaultBinDir = "/usr/local/freesurfer/bin"

// RequiredTools are the registration tools every worker invokes. The mask
// tools are the worker's own concern and are not preflighted here.
var RequiredTools = []string{"mri_coreg", "mri_vol2vol", "lta_convert"}

// Env is a located toolchain. BinDir may be empty, in which case the tools
// are expected on PATH.
type Env struct {
	BinDir string
}

// Locate resolves the FreeSurfer bin directory: the explicit override wins,
// then FREESURFER_HOME_BIN, then $FREESURFER_HOME/bin, then DefaultBinDir if
// it exists. No candidate leaves BinDir empty.
func Locate(override string) Env {
	if override != "" {
		return Env{BinDir: override}
	}
	if p := os.Getenv("FREESURFER_HOME_BIN"); p != "" {
		return Env{BinDir: p}
	}
	if home := os.Getenv("FREESURFER_HOME"); home != "" {
		return Env{BinDir: filepath.Join(home, "bin")}
	}
	if info, err := os.Stat(DefaultBinDir); err == nil && info.IsDir() {
		return Env{BinDir: DefaultBinDir}
	}
	return Env{}
}

// Missing returns the required tools that cannot be found, in RequiredTools
// order. A tool counts as found when it is executable in BinDir or, failing
// that, reachable on PATH.
func (e Env) Missing() []string {
	var missing []string
	for _, tool := range RequiredTools {
		if !e.has(tool) {
			missing = append(missing, tool)
		}
	}
	return missing
}

func (e Env) has(tool string) bool {
	if e.BinDir != "" {
		info, err := os.Stat(filepath.Join(e.BinDir, tool))
		if err == nil && info.Mode().IsRegular() && info.Mode()&0111 != 0 {
			return true
		}
	}
	_, err := exec.LookPath(tool)
	return err == nil
}

// PrependPath returns environ with BinDir put in front of PATH so that child
// processes resolve the located toolchain first. With no BinDir the
// environment passes through unchanged.
func (e Env) PrependPath(environ []string) []string {
	if e.BinDir == "" {
		return environ
	}

	out := make([]string, 0, len(environ)+1)
	found := false
	for _, kv := range environ {
		if strings.HasPrefix(kv, "PATH=") {
			out = append(out, "PATH="+e.BinDir+string(os.PathListSeparator)+strings.TrimPrefix(kv, "PATH="))
			found = true
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+e.BinDir)
	}
	return out
}
