package pythonbridge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestResolveScriptPath(t *testing.T) {
	if got := ResolveScriptPath("/srv", "bridge.py"); got != filepath.Join("/srv", "bridge.py") {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := ResolveScriptPath("/srv", "/opt/bridge.py"); got != "/opt/bridge.py" {
		t.Fatalf("absolute path should be kept: %s", got)
	}
	if got := ResolveScriptPath("", ""); got != "" {
		t.Fatalf("expected empty path, got %s", got)
	}
}

func TestCompleteReadsReply(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "bridge.sh")
	if err := os.WriteFile(script, []byte("cat >/dev/null\necho '{\"reply\":\"halo\"}'\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	client, err := NewClient(sh, script, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "halo" {
		t.Fatalf("unexpected reply: %q", text)
	}
}

func TestNewClientRequiresScript(t *testing.T) {
	if _, err := NewClient("", "", ""); err == nil {
		t.Fatalf("expected error without script path")
	}
}
