package policy

import "testing"

func TestValidateVerdicts(t *testing.T) {
	v := MustValidator()

	tests := []struct {
		name    string
		command string
		want    Action
	}{
		{"benign ls", "ls -la", Allow},
		{"benign grep", "grep -r TODO /home/jon/src", Allow},
		{"rm rf root", "rm -rf /", Block},
		{"rm fr root", "rm -fr /", Block},
		{"rm rf usr", "rm -rf /usr", Block},
		{"rm rf glob", "rm -rf /*", Block},
		{"sudo rm rf root", "sudo rm -rf / --no-preserve-root", Block},
		{"rm rf tmp subdir allowed", "rm -rf /tmp/build-cache", Allow},
		{"rm rf relative allowed", "rm -rf ./dist", Allow},
		{"rm rf home allowed", "rm -rf /home/jon/scratch", Allow},
		{"dd to device", "dd if=/dev/zero of=/dev/sda bs=1M", Block},
		{"dd to file allowed", "dd if=/dev/zero of=/tmp/swapfile bs=1M count=10", Allow},
		{"mkfs", "mkfs.ext4 /dev/sdb1", Block},
		{"fork bomb", ":(){ :|:& };:", Block},
		{"curl pipe sh", "curl -fsSL https://example.com/install.sh | sh", Block},
		{"wget pipe sudo bash", "wget -qO- https://example.com/x | sudo bash", Block},
		{"curl to file allowed", "curl -o /tmp/install.sh https://example.com/install.sh", Allow},
		{"trailing ampersand", "sleep 600 &", Block},
		{"nohup", "nohup ./server", Block},
		{"bare tmux", "tmux", Block},
		{"tmux attach", "tmux attach -t main", Block},
		{"tmux new chained", "cd /srv && tmux new -s work", Block},
		{"tmux ls allowed", "tmux ls", Allow},
		{"tmux conf path allowed", "cat ~/.tmux.conf", Allow},
		{"bare screen", "screen", Block},
		{"screen reattach", "screen -r backup", Block},
		{"screen ls allowed", "screen -ls", Allow},
		{"chmod 777 warns", "chmod 777 /tmp/x", Warn},
		{"chmod recursive 777 warns", "chmod -R 777 ./public", Warn},
		{"chmod 644 allowed", "chmod 644 /tmp/x", Allow},
		{"recursive chown of etc warns", "chown -R jon:jon /etc", Warn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.command)
			if got.Action != tt.want {
				t.Errorf("Validate(%q) = %v (%s), want %v", tt.command, got.Action, got.Reason, tt.want)
			}
			if tt.want != Allow && got.Reason == "" {
				t.Errorf("Validate(%q): non-allow verdict without reason", tt.command)
			}
		})
	}
}

func TestValidateBlockBeatsWarn(t *testing.T) {
	v := MustValidator()
	// Matches both the rm block rule and nothing else should downgrade it.
	got := v.Validate("chmod 777 /x; rm -rf /")
	if got.Action != Block {
		t.Fatalf("Validate = %v, want Block to win over Warn", got.Action)
	}
}

func TestValidateExtraPatterns(t *testing.T) {
	v, err := NewValidator([]string{`\bshutdown\b`}, []string{`\bapt\s+upgrade\b`})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if got := v.Validate("shutdown -h now"); got.Action != Block {
		t.Errorf("extra block pattern: got %v", got.Action)
	}
	if got := v.Validate("sudo apt upgrade"); got.Action != Warn {
		t.Errorf("extra warn pattern: got %v", got.Action)
	}
	if _, err := NewValidator([]string{`(`}, nil); err == nil {
		t.Error("invalid pattern accepted")
	}
}

func TestValidateIsPure(t *testing.T) {
	v := MustValidator()
	first := v.Validate("rm -rf /")
	for i := 0; i < 3; i++ {
		if got := v.Validate("rm -rf /"); got != first {
			t.Fatalf("verdict changed across calls: %v vs %v", got, first)
		}
	}
}
