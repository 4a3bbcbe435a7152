package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

const sample = `
identity:
  name: garra
  version: "1.0"
  description: Assistente pessoal.
capabilities: [relatorio, pesquisa]
limits:
  max_tool_rounds: 10
  max_recoveries: 3
personality: direto e objetivo
`

func TestLoad(t *testing.T) {
	m, err := Load(writeManifest(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Identity.Name != "garra" || m.Limits.MaxRecoveries != 3 {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if len(m.Capabilities) != 2 {
		t.Errorf("capabilities = %v", m.Capabilities)
	}
}

func TestLoad_RequiresIdentity(t *testing.T) {
	if _, err := Load(writeManifest(t, "limits: {max_recoveries: 1}")); err == nil {
		t.Fatal("expected error for missing identity")
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	path := writeManifest(t, sample)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := m.Verify(); err != nil {
		t.Fatalf("verify pristine: %v", err)
	}

	tampered := strings.Replace(sample, "garra", "impostor", 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if err := m.Verify(); err == nil {
		t.Fatal("expected verify to detect tampering")
	}
}

func TestSystemPrompt(t *testing.T) {
	m, _ := Load(writeManifest(t, sample))
	prompt := m.SystemPrompt()

	for _, want := range []string{"Você é garra v1.0", "REGRAS DE EXECUÇÃO", "Personalidade: direto e objetivo"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if m.Identity.Name != "garra" {
		t.Errorf("round trip lost identity: %+v", m.Identity)
	}
}
