//go:build !unix

package tools

import "os/exec"

func startGroup(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
