// Command upgradectl is a thin client for the upgraded HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nwops/upgraded/internal/version"
)

const defaultServer = "http://127.0.0.1:8080"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: upgradectl <command> [flags]

Commands:
  devices    list managed devices
  analyze    evaluate a device without starting an upgrade
  plan       run a dry-run upgrade (pre-check only)
  upgrade    run a full upgrade
  rollback   roll a device back to its previous firmware
  history    show upgrade attempts for a device
  events     show the audit trail for a device
  backup     archive the local database and config
  restore    restore a backup archive
  version    print version and exit

Flags common to the API commands:
  -server    base URL of the upgraded daemon (default %s)
`, defaultServer)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "devices":
		runDevices(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "plan":
		runUpgrade("plan", os.Args[2:])
	case "upgrade":
		runUpgrade("upgrade", os.Args[2:])
	case "rollback":
		runRollback(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "events":
		runEvents(os.Args[2:])
	case "backup":
		runBackup(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "version":
		fmt.Println(version.Info())
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
	}
}

// client wraps the daemon API with timeout and problem-detail handling.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: base, http: &http.Client{Timeout: 15 * time.Minute}}
}

func (c *client) get(path string) (json.RawMessage, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, err
	}
	return c.readBody(resp)
}

func (c *client) post(path string, body any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return nil, err
	}
	return c.readBody(resp)
}

func (c *client) readBody(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &problem) == nil && problem.Title != "" {
			if problem.Detail != "" {
				return nil, fmt.Errorf("%s: %s", problem.Title, problem.Detail)
			}
			return nil, fmt.Errorf("%s", problem.Title)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return data, nil
}

func printJSON(data json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		fmt.Println()
		return
	}
	fmt.Println(out.String())
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
