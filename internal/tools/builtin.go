package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ricmello/garra/internal/checkpoint"
)

// RegisterWorkspace adds file tools scoped to a task's working directory.
// Paths are forced to stay inside workDir.
func RegisterWorkspace(r *Registry, workDir string) {
	r.Register(Schema{
		Name:        "escrever_arquivo",
		Description: "Escreve conteúdo em um arquivo no diretório de trabalho da tarefa",
		Params: []Param{
			{Name: "nome", Type: "string", Description: "Nome do arquivo relativo ao diretório de trabalho", Required: true},
			{Name: "conteudo", Type: "string", Description: "Conteúdo do arquivo", Required: true},
		},
	}, func(args map[string]any) (string, error) {
		path, err := insideWorkDir(workDir, args["nome"].(string))
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		content := args["conteudo"].(string)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("Arquivo %s salvo (%d bytes)", args["nome"], len(content)), nil
	})

	r.Register(Schema{
		Name:        "ler_arquivo",
		Description: "Lê o conteúdo de um arquivo do diretório de trabalho da tarefa",
		Params: []Param{
			{Name: "nome", Type: "string", Description: "Nome do arquivo relativo ao diretório de trabalho", Required: true},
		},
	}, func(args map[string]any) (string, error) {
		path, err := insideWorkDir(workDir, args["nome"].(string))
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})

	r.Register(Schema{
		Name:        "listar_arquivos",
		Description: "Lista os arquivos do diretório de trabalho da tarefa",
		Params:      nil,
	}, func(args map[string]any) (string, error) {
		var names []string
		err := filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, _ := filepath.Rel(workDir, path)
			names = append(names, rel)
			return nil
		})
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "Nenhum arquivo no diretório de trabalho.", nil
		}
		return strings.Join(names, "\n"), nil
	})
}

// RegisterCheckpoints adds tools that let the model save and inspect
// checkpoints of the working directory.
func RegisterCheckpoints(r *Registry, store *checkpoint.Store) {
	r.Register(Schema{
		Name:        "salvar_checkpoint",
		Description: "Cria um checkpoint do estado atual do diretório de trabalho",
		Params: []Param{
			{Name: "mensagem", Type: "string", Description: "Descrição do que foi feito", Required: true},
		},
	}, func(args map[string]any) (string, error) {
		version, err := store.Checkpoint(args["mensagem"].(string), "")
		if err != nil {
			return "", err
		}
		return "Checkpoint criado: " + version[:8], nil
	})

	r.Register(Schema{
		Name:        "historico_checkpoints",
		Description: "Mostra os checkpoints recentes do diretório de trabalho",
		Params:      nil,
	}, func(args map[string]any) (string, error) {
		entries, err := store.Log(10)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "Nenhum checkpoint ainda.", nil
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s  %s  (%s)\n", e.Version, e.Message, e.Timestamp)
		}
		return b.String(), nil
	})
}

// insideWorkDir resolves name under workDir and rejects escapes.
func insideWorkDir(workDir, name string) (string, error) {
	path := filepath.Join(workDir, filepath.Clean("/"+name))
	rel, err := filepath.Rel(workDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("caminho fora do diretório de trabalho: %s", name)
	}
	return path, nil
}
