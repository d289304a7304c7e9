package util

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MountInfo describes the mount that holds a path
type MountInfo struct {
	MountPath string
	FSType    string
	IsNetwork bool
}

var networkFSTypes = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone", "9p"}

// DetectMount finds the mount holding path by longest-prefix match over
// /proc/mounts. On systems without /proc/mounts it reports a local mount.
func DetectMount(path string) *MountInfo {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &MountInfo{}
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return &MountInfo{}
	}
	defer f.Close()

	return matchMount(f, abs)
}

func matchMount(r io.Reader, abs string) *MountInfo {
	best := &MountInfo{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], strings.ToLower(fields[2])

		if !underMount(abs, mountPoint) || len(mountPoint) < len(best.MountPath) {
			continue
		}
		best = &MountInfo{MountPath: mountPoint, FSType: fsType}
		for _, netType := range networkFSTypes {
			if strings.HasPrefix(fsType, netType) {
				best.IsNetwork = true
				break
			}
		}
	}
	return best
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}

// IsNetworkPath reports whether path lives on a network filesystem
func IsNetworkPath(path string) bool {
	return DetectMount(path).IsNetwork
}

// NASRetryConfig returns retry config for storage roots on network mounts
func NASRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 5,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}
