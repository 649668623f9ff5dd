//go:build linux

package main

import (
	"encoding/json"
	"testing"
)

func TestInitRequestDecodesParentEncoding(t *testing.T) {
	// same field names the limiter's encoder emits
	payload := []byte(`{
		"RunSpec": {
			"WorkDir": "/work",
			"Cmd": ["./main"],
			"Limits": {"CPUTimeMs": 1000, "MemoryMB": 256, "OutputMB": 16, "PIDs": 8}
		},
		"Isolation": {"RootFS": "/rootfs", "DisableNetwork": true},
		"EnableSeccomp": true,
		"EnableNs": true,
		"EnableMemRlimit": true
	}`)

	var req initRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !req.EnableMemRlimit {
		t.Fatal("memory rlimit flag was lost on the wire")
	}
	if req.RunSpec.Limits.MemoryMB != 256 {
		t.Fatalf("expected memory limit 256, got %d", req.RunSpec.Limits.MemoryMB)
	}
	if !req.EnableNs || !req.EnableSeccomp || !req.Isolation.DisableNetwork {
		t.Fatal("isolation flags were lost on the wire")
	}
}

func TestParseSeccompAction(t *testing.T) {
	tests := []struct {
		action  string
		wantErr bool
	}{
		{"SCMP_ACT_ALLOW", false},
		{"scmp_act_allow", false},
		{"SCMP_ACT_KILL", false},
		{"SCMP_ACT_KILL_PROCESS", false},
		{"SCMP_ACT_TRACE", true},
		{"", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.action, func(t *testing.T) {
			_, err := parseSeccompAction(tt.action)
			if tt.wantErr && err == nil {
				t.Fatalf("expected %q to be rejected", tt.action)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("parse %q: %v", tt.action, err)
			}
		})
	}
}
