package agent

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// maxSlaveID bounds derived slave IDs to 1..maxSlaveID.
const maxSlaveID = 999999

var errNoIdentifier = errors.New("machine identifier not found")

// SlaveID derives a stable slave ID from a machine identifier: the first
// eight hex digits of its MD5 sum, reduced to 1..999999.
func SlaveID(ident string) int {
	sum := md5.Sum([]byte(ident))
	n, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return int(n%maxSlaveID) + 1
}

// MachineIdentifier returns a platform identifier for this host: the CPU
// serial or machine-id on Linux, the platform UUID on macOS and the
// processor ID on Windows.
func MachineIdentifier(ctx context.Context) (string, error) {
	switch runtime.GOOS {
	case "linux":
		return linuxIdentifier()
	case "darwin":
		out, err := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
		if err != nil {
			return "", fmt.Errorf("ioreg: %w", err)
		}
		return parseIoregUUID(out)
	case "windows":
		out, err := exec.CommandContext(ctx, "wmic", "cpu", "get", "ProcessorId").Output()
		if err != nil {
			return "", fmt.Errorf("wmic: %w", err)
		}
		return parseWmicProcessorID(out)
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func linuxIdentifier() (string, error) {
	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		if serial, ok := parseCPUInfoSerial(data); ok {
			return serial, nil
		}
	}
	data, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return "", fmt.Errorf("read machine-id: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errNoIdentifier
	}
	return id, nil
}

// parseCPUInfoSerial finds the "Serial" line of /proc/cpuinfo, present on
// ARM boards.
func parseCPUInfoSerial(data []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Serial" {
			continue
		}
		if v := strings.TrimSpace(value); v != "" {
			return v, true
		}
	}
	return "", false
}

func parseIoregUUID(out []byte) (string, error) {
	for line := range strings.Lines(string(out)) {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		if _, value, ok := strings.Cut(line, "="); ok {
			return strings.Trim(strings.TrimSpace(value), `"`), nil
		}
	}
	return "", errNoIdentifier
}

func parseWmicProcessorID(out []byte) (string, error) {
	for line := range strings.Lines(string(out)) {
		line = strings.TrimSpace(line)
		if line != "" && line != "ProcessorId" {
			return line, nil
		}
	}
	return "", errNoIdentifier
}
