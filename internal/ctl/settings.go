package ctl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SettingsOptions configures the settings command.
type SettingsOptions struct {
	Set  []string // dotted assignments like duty.active_seconds=600
	Save bool     // persist the record to the daemon's config file
	JSON bool
}

// Settings shows, updates, or saves the daemon's settings record. With no
// assignments and no save flag it fetches and prints the current record.
// Assignments are applied first; --save then writes whatever the daemon
// holds in memory back to its config file.
func Settings(baseURL string, opts SettingsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if len(opts.Set) > 0 {
		body, err := assignmentsToBody(opts.Set)
		if err != nil {
			return err
		}

		var result struct {
			OK              bool           `json:"ok"`
			RestartRequired bool           `json:"restart_required"`
			Config          map[string]any `json:"config"`
			Error           string         `json:"error"`
		}
		if err := postJSON(baseURL, "/api/settings", body, &result); err != nil {
			return err
		}
		if opts.JSON && !opts.Save {
			return printJSON(result)
		}
		if !opts.JSON {
			fmt.Printf("\n  %s  settings updated", colorize(green, "OK"))
			if result.RestartRequired {
				fmt.Printf("  %s", colorize(yellow, "(takes effect on next daemon start)"))
			}
			fmt.Println()
		}
	}

	if opts.Save {
		var result struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := postJSON(baseURL, "/api/settings/save", nil, &result); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(result)
		}
		fmt.Printf("  %s  %s\n\n", colorize(green, "SAVED"), result.Message)
		return nil
	}

	if len(opts.Set) > 0 {
		if !opts.JSON {
			fmt.Println()
		}
		return nil
	}

	// Plain query: fetch and print the record.
	var cfg map[string]any
	if err := getJSON(baseURL, "/api/settings", &cfg); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cfg)
	}

	fmt.Println()
	fmt.Println(header("  SETTINGS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	printSettingsTree(cfg, "  ")
	fmt.Println()
	return nil
}

// assignmentsToBody turns dotted key=value pairs into the nested JSON object
// the settings endpoint layers over the current record. Values parse as
// bool, then number, then string.
func assignmentsToBody(assignments []string) (map[string]any, error) {
	body := map[string]any{}
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("bad assignment %q, want section.key=value", a)
		}

		var value any
		switch {
		case raw == "true" || raw == "false":
			value = raw == "true"
		default:
			if n, err := strconv.Atoi(raw); err == nil {
				value = n
			} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
				value = f
			} else {
				value = raw
			}
		}

		parts := strings.Split(key, ".")
		node := body
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return body, nil
}

// printSettingsTree renders the nested record as indented key: value lines,
// sections first.
func printSettingsTree(node map[string]any, indent string) {
	var sections, leaves []string
	for k, v := range node {
		if _, ok := v.(map[string]any); ok {
			sections = append(sections, k)
		} else {
			leaves = append(leaves, k)
		}
	}
	sort.Strings(leaves)
	sort.Strings(sections)

	for _, k := range leaves {
		fmt.Printf("%s%s %v\n", indent, colorize(dim, padRight(k+":", 20)), node[k])
	}
	for _, k := range sections {
		fmt.Printf("%s%s\n", indent, header(k))
		printSettingsTree(node[k].(map[string]any), indent+"  ")
	}
}
