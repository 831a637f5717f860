package ctl

import (
	"fmt"
	"strings"
)

// PowerDown asks the daemon to enter a sleep cycle at its next checkpoint.
func PowerDown(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := postJSON(baseURL, "/api/power-down", nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println()
	if result.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "REQUESTED"), result.Message)
		fmt.Println(colorize(dim, "  the transition shows up on `logctl watch` and in status"))
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "ERROR"), result.Error)
	}
	fmt.Println()

	return nil
}
