//go:build linux

package memory

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// cgroupUnlimited is the threshold above which a v1 limit means "no limit".
const cgroupUnlimited = 1 << 62

func cgroupLimit() uint64 {
	mountinfo, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return 0
	}
	defer func() {
		_ = mountinfo.Close()
	}()

	self, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return 0
	}
	defer func() {
		_ = self.Close()
	}()

	return readCgroupLimit(mountinfo, self, os.ReadFile)
}

// readCgroupLimit locates the memory controller through mountinfo and reads
// the limit for this process's cgroup. Any failure yields 0.
func readCgroupLimit(mountinfo, selfCgroup io.Reader, readFile func(string) ([]byte, error)) uint64 {
	v2Mount, v1Mount := cgroupMounts(mountinfo)
	v2Path, v1Path := cgroupPaths(selfCgroup)

	if v2Mount != "" {
		candidates := []string{filepath.Join(v2Mount, v2Path, "memory.max")}
		if v2Path != "" && v2Path != "/" {
			candidates = append(candidates, filepath.Join(v2Mount, "memory.max"))
		}
		for _, path := range candidates {
			if limit, ok := readLimitFile(path, readFile); ok {
				return limit
			}
		}
	}
	if v1Mount != "" {
		candidates := []string{
			filepath.Join(v1Mount, v1Path, "memory.limit_in_bytes"),
			filepath.Join(v1Mount, "memory.limit_in_bytes"),
		}
		for _, path := range candidates {
			if limit, ok := readLimitFile(path, readFile); ok {
				return limit
			}
		}
	}
	return 0
}

// cgroupMounts returns the cgroup2 mount point and the cgroup v1 memory
// controller mount point. mountinfo lines look like:
//
//	<id> <parent> <maj:min> <root> <mount point> <opts> ... - <fstype> <source> <superopts>
func cgroupMounts(r io.Reader) (v2, v1 string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		i := strings.LastIndex(line, " - ")
		if i < 0 {
			continue
		}
		pre := strings.Fields(line[:i])
		tail := strings.Fields(line[i+3:])
		if len(pre) < 5 || len(tail) < 1 {
			continue
		}
		mountPoint := pre[4]
		switch tail[0] {
		case "cgroup2":
			if v2 == "" {
				v2 = mountPoint
			}
		case "cgroup":
			if len(tail) >= 3 && hasOption(tail[2], "memory") && v1 == "" {
				v1 = mountPoint
			}
		}
	}
	return v2, v1
}

// cgroupPaths parses /proc/self/cgroup for the unified (v2) path and the v1
// memory controller path.
func cgroupPaths(r io.Reader) (v2, v1 string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), ":", 3)
		if len(parts) != 3 {
			continue
		}
		switch {
		case parts[0] == "0" && parts[1] == "":
			v2 = parts[2]
		case hasOption(parts[1], "memory"):
			v1 = parts[2]
		}
	}
	return v2, v1
}

func hasOption(opts, name string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == name {
			return true
		}
	}
	return false
}

func readLimitFile(path string, readFile func(string) ([]byte, error)) (uint64, bool) {
	data, err := readFile(path)
	if err != nil {
		return 0, false
	}
	raw := strings.TrimSpace(string(data))
	if raw == "max" {
		return 0, true
	}
	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	if limit >= cgroupUnlimited {
		return 0, true
	}
	return limit, true
}
