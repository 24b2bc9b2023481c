package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	httpapi "github.com/partcat/partcat/internal/api/http"
	"github.com/partcat/partcat/internal/connector/connectortest"
	"github.com/partcat/partcat/pkg/types"
)

// runCLI runs the binary's app with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = io.Discard
	err := a.Run(append([]string{"partcat"}, args...))
	return out.String(), err
}

func seed(t *testing.T, dataDir string) []types.PartitionDto {
	t.Helper()
	table := types.NewTableName("local", "db", "events")
	parts := connectortest.Partitions(table, 5, "file:///warehouse/db/events")

	data, err := json.Marshal(types.PartitionsSaveRequest{Partitions: parts})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "save.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCLI(t, "--data-dir", dataDir, "save", "--file", path, "local/db/events")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	var resp types.PartitionsSaveResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil || len(resp.Added) != 5 {
		t.Fatalf("unexpected save output %q: %v", out, err)
	}
	return parts
}

func TestListCommands(t *testing.T) {
	dir := t.TempDir()
	parts := seed(t, dir)

	out, err := runCLI(t, "--data-dir", dir, "keys", "--filter", "region = 'eu'", "local/db/events")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	var keys types.Page[string]
	json.Unmarshal([]byte(out), &keys)
	if len(keys.Items) != 2 {
		t.Errorf("expected 2 eu partitions, got %v", keys.Items)
	}

	out, err = runCLI(t, "--data-dir", dir, "count", "local/db/events")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	var count httpapi.CountResponse
	json.Unmarshal([]byte(out), &count)
	if count.Count != 5 {
		t.Errorf("expected 5, got %d", count.Count)
	}

	out, err = runCLI(t, "--data-dir", dir, "names", parts[1].Location)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if !strings.Contains(out, parts[1].Name.String()) {
		t.Errorf("expected %s in %s", parts[1].Name, out)
	}

	out, err = runCLI(t, "--data-dir", dir, "partitions", "--sort", "dt", "--order", "desc", "-n", "1", "local/db/events")
	if err != nil {
		t.Fatalf("partitions: %v", err)
	}
	var page types.Page[types.PartitionDto]
	json.Unmarshal([]byte(out), &page)
	if len(page.Items) != 1 || page.Items[0].Name.PartitionName != parts[4].Name.PartitionName || !page.HasMore() {
		t.Errorf("unexpected first page %+v", page)
	}
}

func TestDeleteCommand(t *testing.T) {
	dir := t.TempDir()
	parts := seed(t, dir)

	out, err := runCLI(t, "--data-dir", dir, "delete", parts[0].Name.String(), "local/db/events/dt=1")
	if err == nil {
		t.Fatal("expected partial failure")
	}
	var resp httpapi.DeleteResponse
	json.Unmarshal([]byte(out), &resp)
	if len(resp.Deleted) != 1 || len(resp.Failures) != 1 || resp.Failures[0].Name != "local/db/events/dt=1" {
		t.Errorf("unexpected delete output %+v", resp)
	}

	if _, err := runCLI(t, "--data-dir", dir, "delete", "local/db/events"); err == nil {
		t.Error("expected a table name to be rejected")
	}
}

func TestFilterCommand(t *testing.T) {
	out, err := runCLI(t, "filter", "--keys", "dt", "--match", "dt=20200102/region=us", "dt > 20200101 and region = 'us'")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	var report FilterReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Matches == nil || !*report.Matches {
		t.Errorf("expected a match, got %+v", report)
	}
	if len(report.Keys) != 2 || len(report.UnknownKeys) != 1 || report.UnknownKeys[0] != "region" {
		t.Errorf("unexpected keys %+v", report)
	}

	if _, err := runCLI(t, "filter", "dt >"); err == nil {
		t.Error("expected a syntax error")
	}
}

func TestTableArgument(t *testing.T) {
	if _, err := runCLI(t, "--data-dir", t.TempDir(), "count", "local/db"); err == nil {
		t.Error("expected an incomplete table name to be rejected")
	}
}
