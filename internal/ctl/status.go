package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Simulate      bool   `json:"simulate"`
	LoggingOnline bool   `json:"logging_online"`
	CurrentFile   string `json:"current_file"`
	BytesWritten  int64  `json:"bytes_written"`
	Rotations     int    `json:"rotations"`
	SleepCycles   uint64 `json:"sleep_cycles"`
	RTCSynced     bool   `json:"rtc_synced"`
	DataRoot      string `json:"data_root"`
	Disk          *struct {
		TotalBytes     uint64 `json:"total_bytes"`
		UsedBytes      uint64 `json:"used_bytes"`
		AvailableBytes uint64 `json:"available_bytes"`
	} `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)

	logging := colorize(red, "offline")
	if s.LoggingOnline {
		logging = colorize(green, "online")
	}

	file := s.CurrentFile
	if file == "" {
		file = colorize(dim, "none")
	}

	rtcStr := colorize(yellow, "unsynced")
	if s.RTCSynced {
		rtcStr = colorize(green, "synced")
	}

	fmt.Println()
	fmt.Println(header("  GNSS LOGGER STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-14s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Logging:"), logging)
	fmt.Printf("  %-14s %s\n", colorize(dim, "File:"), file)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Written:"), formatBytes(s.BytesWritten))
	fmt.Printf("  %-14s %d\n", colorize(dim, "Rotations:"), s.Rotations)
	fmt.Printf("  %-14s %d\n", colorize(dim, "Sleep cycles:"), s.SleepCycles)
	fmt.Printf("  %-14s %s\n", colorize(dim, "RTC:"), rtcStr)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Data:"), s.DataRoot)
	if s.Disk != nil {
		fmt.Printf("  %-14s %s free of %s\n", colorize(dim, "Disk:"),
			formatBytes(int64(s.Disk.AvailableBytes)), formatBytes(int64(s.Disk.TotalBytes)))
	}
	if s.Simulate {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Mode:"), colorize(yellow, "simulate"))
	}
	fmt.Printf("  %-14s %s\n", colorize(dim, "Host:"), baseURL)
	fmt.Println()

	return nil
}
