// Package mountutil shells out to the host's mount(8)/umount(8) binaries to
// set up and tear down overlay and bind mounts. It follows the same
// build-argv-then-CombinedOutput shell-out idiom used elsewhere for host
// tooling (iptables, nsenter) rather than reimplementing the mount(2)
// syscall's option-string encoding.
package mountutil

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/cuemby/baseoverlay-csi/pkg/log"
)

// Overlay mounts target as an overlay filesystem with lowerDir as the
// read-only lower layer and upperDir/workDir as the writable upper layer
// and overlay workdir, all of which must already exist. id is used as the
// mount's device/source name so it is identifiable by volume in
// /proc/mounts.
func Overlay(ctx context.Context, id, lowerDir, upperDir, workDir, target string) error {
	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lowerDir, upperDir, workDir)
	return run(ctx, "mount", "-t", "overlay", id, "-o", opts, target)
}

// Bind bind-mounts source onto target.
func Bind(ctx context.Context, source, target string) error {
	return run(ctx, "mount", "--bind", source, target)
}

// Unmount force-unmounts target. A failure is logged by run and returned,
// so that lifecycle.Unmount can decide whether a failed unmount should
// block pod teardown.
func Unmount(ctx context.Context, target string) error {
	return run(ctx, "umount", "-f", target)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.WithComponent("mountutil").Error().Str("cmd", name).Strs("args", args).Msg("mount command failed")
		return fmt.Errorf("%s %v failed: %w (output: %s)", name, args, err, string(output))
	}
	return nil
}
