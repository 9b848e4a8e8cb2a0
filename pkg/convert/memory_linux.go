//go:build linux

package convert

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// availableMemoryMiB best-effort reads /proc/meminfo's MemAvailable field.
// Returns ok=false if it can't be determined, in which case the caller
// falls back to cpu_count per §4.6.
func availableMemoryMiB() (int, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kib, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, false
		}
		return kib / 1024, true
	}
	return 0, false
}
