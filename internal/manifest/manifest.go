// Package manifest loads the system's immutable ground-truth file: identity,
// capabilities and limits. Loaded once at startup, injected explicitly into
// the executor and the agent loop, and hash-checked on read so tampering
// with the file after boot is detected instead of silently absorbed.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Identity names the assistant.
type Identity struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// Limits are the operational bounds advertised by the manifest.
type Limits struct {
	MaxToolRounds int `yaml:"max_tool_rounds"`
	MaxRecoveries int `yaml:"max_recoveries"`
}

// Manifest is the read-only ground truth. Construct with Load; never mutate.
type Manifest struct {
	Identity     Identity `yaml:"identity"`
	Capabilities []string `yaml:"capabilities"`
	Limits       Limits   `yaml:"limits"`
	Personality  string   `yaml:"personality"`

	path string
	sum  string
}

// Load reads and parses the manifest, recording its content hash.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Identity.Name == "" {
		return nil, fmt.Errorf("manifest %s: identity.name is required", path)
	}

	m.path = path
	m.sum = hash(raw)
	return &m, nil
}

// Verify re-reads the manifest file and compares its hash against the one
// recorded at load time. A mismatch means the ground truth was tampered
// with while the process was running.
func (m *Manifest) Verify() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("verify manifest: %w", err)
	}
	if hash(raw) != m.sum {
		return fmt.Errorf("manifest %s foi modificado após o carregamento", m.path)
	}
	return nil
}

// SystemPrompt builds the agent's system prompt from the manifest.
func (m *Manifest) SystemPrompt() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Você é %s v%s. %s",
		m.Identity.Name, m.Identity.Version, m.Identity.Description))

	parts = append(parts, strings.TrimSpace(`
REGRAS DE EXECUÇÃO:
1. EXECUTE tarefas usando as tools disponíveis. Não DESCREVA o que faria.
2. Se o usuário pede algo que requer uma tool, CHAME a tool.
3. Se não existe tool para o pedido, diga o que você pode fazer no lugar.
4. NUNCA invente tools que não existem.
5. NUNCA invente sua versão, modelo ou capacidades.
6. Se não sabe, diga "não sei". Se não pode, diga "não posso".

REGRAS DE COMUNICAÇÃO:
- Responda em português brasileiro.
- Seja conciso. Não repita informações.
- Quando uma tool retornar sucesso, relate o resultado sem rodeios.`))

	if m.Personality != "" {
		parts = append(parts, "Personalidade: "+m.Personality)
	}

	return strings.Join(parts, "\n\n")
}

// Default returns the manifest content written by `garra init`.
func Default() *Manifest {
	return &Manifest{
		Identity: Identity{
			Name:        "garra",
			Version:     "1.0",
			Description: "Assistente pessoal multi-agente com execução resiliente de tarefas.",
		},
		Capabilities: []string{"relatorio", "pesquisa", "arquivo"},
		Limits:       Limits{MaxToolRounds: 10, MaxRecoveries: 3},
	}
}

// Save writes a manifest to disk (used only by init, before freezing).
func Save(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
