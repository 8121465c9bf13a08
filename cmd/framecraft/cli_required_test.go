package main

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestMissingInputErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		args    []string
		wantErr string
	}{
		{
			name:    "craft without type or wizard",
			cmd:     newCraftCmd,
			args:    nil,
			wantErr: "frame type argument or --interactive required",
		},
		{
			name:    "send without type or hex",
			cmd:     newSendCmd,
			args:    nil,
			wantErr: "frame type argument or --hex required",
		},
		{
			name:    "inspect without a frame source",
			cmd:     newInspectCmd,
			args:    nil,
			wantErr: "frame type argument, --hex or --pcap required",
		},
		{
			name:    "craft rejects extra arguments",
			cmd:     newCraftCmd,
			args:    []string{"SEARCH REQUEST", "EXTRA"},
			wantErr: "accepts at most 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}
