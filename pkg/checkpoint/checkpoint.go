// Package checkpoint persists and re-reads the raw bytes of a successful
// CNI ADD's stdout, the durable record §4.5/§4.6 checkpoint and recovery
// depend on.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	types100 "github.com/containernetworking/cni/pkg/types/100"
)

// Write stores raw, the exact bytes a plugin wrote to stdout on a
// successful ADD, at path, creating the interface directory if needed.
func Write(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", path, err)
	}
	return nil
}

// Read returns the raw checkpoint bytes and a best-effort parsed result.
//
// A missing file is reported by a nil raw and a nil error: the checkpoint
// may legitimately never have been written (a crash between ADD success
// and the write, §4.6). A present-but-unparseable file degrades the same
// way — result is nil but raw is returned so the caller can still log it —
// since a torn write is at least as strong a signal as a missing file, not
// a fatal one.
func Read(path string) (raw []byte, result *types100.Result, err error) {
	raw, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}

	var res types100.Result
	if jsonErr := json.Unmarshal(raw, &res); jsonErr != nil {
		return raw, nil, nil
	}
	return raw, &res, nil
}

// Summarize renders a short, log-friendly description of a parsed result's
// assigned addresses. Returns "" for a nil result.
func Summarize(result *types100.Result) string {
	if result == nil {
		return ""
	}
	addrs := make([]string, 0, len(result.IPs))
	for _, ip := range result.IPs {
		addrs = append(addrs, ip.Address.String())
	}
	if len(addrs) == 0 {
		return ""
	}
	out := addrs[0]
	for _, a := range addrs[1:] {
		out += "," + a
	}
	return out
}
