package admin

import (
	"testing"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

func TestCommandBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  remote.Command
		want remote.Command
	}{
		{
			name: "add user to group",
			got:  AddUserToGroup("deploy", "docker"),
			want: remote.Cmd("sudo usermod -aG docker deploy"),
		},
		{
			name: "make swap",
			got:  MakeSwap("/dev/sdb"),
			want: remote.Cmd("sudo mkswap /dev/sdb"),
		},
		{
			name: "enable swap",
			got:  EnableSwap("/dev/sdb"),
			want: remote.Cmd("sudo swapon /dev/sdb"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("built %q, want %q", tt.got.String(), tt.want.String())
			}
		})
	}
}
