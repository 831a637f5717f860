package ctl

import (
	"fmt"
	"net/http"
	"strings"
)

// FilesOptions configures the files command.
type FilesOptions struct {
	Delete string
	JSON   bool
}

// Files lists or deletes log files on the daemon.
func Files(baseURL string, opts FilesOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Delete != "" {
		url := baseURL + "/api/files?name=" + opts.Delete
		req, err := http.NewRequest(http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(result)
		}
		if result.OK {
			fmt.Printf("\n  %s  %s\n\n", colorize(green, "DELETED"), result.Message)
		} else {
			fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
		}
		return nil
	}

	var resp struct {
		Files []struct {
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			Modified string `json:"modified"`
			Current  bool   `json:"current"`
		} `json:"files"`
	}
	if err := getJSON(baseURL, "/api/files", &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  LOG FILES"))

	if len(resp.Files) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No log files found.")
	} else {
		t := newTable("  ", "Name", "Size", "Modified", "")
		t.alignRight(1)
		for _, f := range resp.Files {
			marker := ""
			if f.Current {
				marker = colorize(green, "active")
			}
			t.row(f.Name, formatBytes(f.Size), f.Modified, marker)
		}
		t.flush()
	}
	fmt.Println()
	return nil
}
