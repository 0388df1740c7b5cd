//go:build linux

package downloader

import (
	"log"
	"os"
	"syscall"
)

// setpgidAttr puts the child in its own process group so Cancel can signal
// the whole tree with a single negative-pid kill.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGKILL to the whole process group p leads, so
// children spawned by the tool (ffmpeg, etc.) die with it.
func killProcessTree(p *os.Process) error {
	pgid, err := syscall.Getpgid(p.Pid)
	if err != nil {
		return p.Kill()
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		log.Printf("downloader: kill process group %d: %v; falling back to direct kill", pgid, err)
		return p.Kill()
	}
	return nil
}
