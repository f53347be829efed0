// Package security provides device identity, credential verification and
// session tokens.
//
// The device fingerprint is the primary network interface MAC address. It is
// trivially spoofable by anyone with local administrator rights, so the
// binding it enables is a deterrent against casual account sharing and not a
// security boundary.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

const zeroMAC = "00:00:00:00:00:00"

// FingerprintManager derives and caches the fingerprint of the current machine
type FingerprintManager struct {
	interfaces    func() ([]net.Interface, error)
	hostname      func() (string, error)
	logger        *slog.Logger
	cache         string
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager(logger *slog.Logger) *FingerprintManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintManager{
		interfaces:    net.Interfaces,
		hostname:      os.Hostname,
		logger:        logger.With(slog.String("component", "fingerprint")),
		cacheDuration: time.Hour,
	}
}

// Current returns the fingerprint of this machine, formatted aa:bb:cc:dd:ee:ff
// when a hardware address is available.
func (fm *FingerprintManager) Current(ctx context.Context) (string, error) {
	fm.cacheMutex.RLock()
	if fm.cache != "" && time.Now().Before(fm.cacheExpiry) {
		cached := fm.cache
		fm.cacheMutex.RUnlock()
		return cached, nil
	}
	fm.cacheMutex.RUnlock()

	fingerprint, err := fm.GetMACAddress()
	if err != nil {
		fm.logger.WarnContext(ctx, "No usable MAC address, using host fallback",
			slog.String("error", err.Error()))

		fingerprint, err = fm.hostFallback()
		if err != nil {
			return "", fmt.Errorf("failed to derive device fingerprint: %w", err)
		}
	}

	fm.cacheMutex.Lock()
	fm.cache = fingerprint
	fm.cacheExpiry = time.Now().Add(fm.cacheDuration)
	fm.cacheMutex.Unlock()

	fm.logger.DebugContext(ctx, "Device fingerprint generated", slog.String("fingerprint", fingerprint))
	return fingerprint, nil
}

// Name prefixes of interfaces whose addresses are generated per boot or per
// container and so cannot identify the machine
var virtualInterfacePrefixes = []string{
	"docker", "veth", "br-", "virbr", "vmnet", "vboxnet",
	"utun", "tun", "tap", "wg", "zt", "awdl", "llw", "bridge",
}

// GetMACAddress returns the hardware address of the physical interface with
// the lowest index, preferring interfaces that are up. Loopback,
// point-to-point and virtual interfaces are never used.
func (fm *FingerprintManager) GetMACAddress() (string, error) {
	interfaces, err := fm.interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	iface, ok := selectInterface(interfaces, true)
	if !ok {
		iface, ok = selectInterface(interfaces, false)
		if !ok {
			return "", fmt.Errorf("no valid MAC address found")
		}
		fm.logger.Warn("Using MAC address of an interface that is down",
			slog.String("interface", iface.Name))
	}
	return normalizeMAC(iface.HardwareAddr), nil
}

// selectInterface picks the candidate with the lowest index, then name, so
// the choice does not depend on enumeration order
func selectInterface(interfaces []net.Interface, requireUp bool) (net.Interface, bool) {
	candidates := make([]net.Interface, 0, len(interfaces))
	for _, iface := range interfaces {
		if iface.Flags&(net.FlagLoopback|net.FlagPointToPoint) != 0 {
			continue
		}
		if requireUp && iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) || normalizeMAC(iface.HardwareAddr) == "" {
			continue
		}
		candidates = append(candidates, iface)
	}
	if len(candidates) == 0 {
		return net.Interface{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Index != candidates[j].Index {
			return candidates[i].Index < candidates[j].Index
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0], true
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ClearCache clears the cached fingerprint
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()

	fm.cache = ""
	fm.cacheExpiry = time.Time{}
}

func (fm *FingerprintManager) hostFallback() (string, error) {
	hostname, err := fm.hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}

	hash := sha256.Sum256([]byte(hostname + "|" + runtime.GOOS + "|" + runtime.GOARCH))
	return "host-" + hex.EncodeToString(hash[:8]), nil
}

func normalizeMAC(addr net.HardwareAddr) string {
	if len(addr) < 6 {
		return ""
	}
	mac := strings.ToLower(addr.String())
	if mac == zeroMAC {
		return ""
	}
	return mac
}

// StaticFingerprint is a fixed fingerprint, used when the device identity is
// supplied by the caller instead of derived from local hardware.
type StaticFingerprint string

// Current returns the fixed fingerprint
func (s StaticFingerprint) Current(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty device fingerprint")
	}
	return string(s), nil
}
