//go:build !linux

package downloader

import (
	"os"
	"syscall"
)

// setpgidAttr is a no-op outside Linux; Cancel falls back to killing the
// direct child process only.
func setpgidAttr() *syscall.SysProcAttr {
	return nil
}

// killProcessTree has no portable process-group kill outside Linux; kill the
// direct child only.
func killProcessTree(p *os.Process) error {
	return p.Kill()
}
