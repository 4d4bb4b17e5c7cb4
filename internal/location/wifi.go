package location

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

// scanWiFiAccessPoints lists nearby access points using nmcli.
func scanWiFiAccessPoints(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}

	// Terse mode escapes the colons inside BSSIDs as "\:".
	cmd := exec.CommandContext(ctx, "nmcli", "-t", "-f", "BSSID,SIGNAL", "dev", "wifi", "list")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run nmcli: %w", err)
	}

	return parseNmcliOutput(string(output))
}

// parseNmcliOutput turns "AA\:BB\:CC\:DD\:EE\:FF:72" lines into access points.
func parseNmcliOutput(output string) ([]maps.WiFiAccessPoint, error) {
	var aps []maps.WiFiAccessPoint

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		sep := strings.LastIndex(line, ":")
		if sep <= 0 {
			continue
		}

		mac := strings.ReplaceAll(line[:sep], `\:`, ":")
		if !isValidMAC(mac) {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(line[sep+1:]))
		if err != nil {
			continue
		}

		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     strings.ToLower(mac),
			SignalStrength: signalToDBm(signal),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nmcli output: %w", err)
	}

	return aps, nil
}

// signalToDBm maps nmcli's 0-100 quality to an approximate RSSI.
func signalToDBm(quality int) float64 {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return float64(quality)/2 - 100
}

// isValidMAC checks for the "00:14:22:01:23:45" form.
func isValidMAC(mac string) bool {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(part, 16, 8); err != nil {
			return false
		}
	}
	return true
}
