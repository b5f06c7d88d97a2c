package pm2

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/haukkala/procpilot/internal"
)

// Ecosystem is the structured configuration value behind one config
// artifact. The textual grammar pm2 expects is produced by a Renderer,
// keeping render/write/delete independent of the syntax.
type Ecosystem struct {
	Name             string
	Script           string
	Args             string
	Cwd              string
	Env              map[string]string
	AutoRestart      bool
	CronRestart      string
	Watch            bool
	IgnoreWatch      []string
	MaxMemoryRestart string
	ErrorFile        string
	OutFile          string

	// Optional remote-provisioning stage.
	Deploy *DeployStage
}

type DeployStage struct {
	User       string
	Host       string
	Ref        string
	Repo       string
	Path       string
	PostDeploy string
}

// Renderer serializes an Ecosystem into the artifact's textual grammar.
type Renderer interface {
	Render(cfg *Ecosystem) ([]byte, error)
}

// JSRenderer produces the module.exports ecosystem file pm2 consumes.
type JSRenderer struct{}

func (JSRenderer) Render(cfg *Ecosystem) ([]byte, error) {
	env, err := json.Marshal(cfg.Env)
	if err != nil {
		return nil, err
	}
	ignoreWatch, err := json.Marshal(cfg.IgnoreWatch)
	if err != nil {
		return nil, err
	}

	b := new(strings.Builder)
	b.WriteString("module.exports = {\n")
	b.WriteString("    apps: [{\n")
	fmt.Fprintf(b, "        name: %q,\n", cfg.Name)
	fmt.Fprintf(b, "        script: %q,\n", cfg.Script)
	fmt.Fprintf(b, "        args: %q,\n", cfg.Args)
	fmt.Fprintf(b, "        cwd: %q,\n", cfg.Cwd)
	fmt.Fprintf(b, "        env: %s,\n", env)
	fmt.Fprintf(b, "        autorestart: %t,\n", cfg.AutoRestart)
	if strings.TrimSpace(cfg.CronRestart) != "" {
		fmt.Fprintf(b, "        cron_restart: %q,\n", cfg.CronRestart)
	}
	fmt.Fprintf(b, "        watch: %t,\n", cfg.Watch)
	fmt.Fprintf(b, "        ignore_watch: %s,\n", ignoreWatch)
	fmt.Fprintf(b, "        max_memory_restart: %q,\n", cfg.MaxMemoryRestart)
	fmt.Fprintf(b, "        error_file: %q,\n", cfg.ErrorFile)
	fmt.Fprintf(b, "        out_file: %q,\n", cfg.OutFile)
	b.WriteString("        merge_logs: true,\n")
	b.WriteString("        time: true,\n")
	b.WriteString("        log_date_format: \"YYYY-MM-DD HH:mm:ss Z\"\n")
	b.WriteString("    }]")

	if d := cfg.Deploy; d != nil {
		b.WriteString(",\n\n    deploy: {\n")
		b.WriteString("        production: {\n")
		fmt.Fprintf(b, "            user: %q,\n", d.User)
		fmt.Fprintf(b, "            host: [%q],\n", d.Host)
		fmt.Fprintf(b, "            ref: %q,\n", d.Ref)
		fmt.Fprintf(b, "            repo: %q,\n", d.Repo)
		fmt.Fprintf(b, "            path: %q,\n", d.Path)
		fmt.Fprintf(b, "            \"post-deploy\": %q\n", d.PostDeploy)
		b.WriteString("        }\n")
		b.WriteString("    }")
	}

	b.WriteString("\n};\n")
	return []byte(b.String()), nil
}

// NewMaterializer returns a Materializer writing artifacts named
// <name>.config.js under dir.
func NewMaterializer(dir string, renderer Renderer) *Materializer {
	if renderer == nil {
		renderer = JSRenderer{}
	}
	return &Materializer{dir: dir, renderer: renderer}
}

// Materializer renders and persists config artifacts. Writes are
// atomic (temp file + rename); deletes are idempotent.
type Materializer struct {
	dir      string
	renderer Renderer
}

func (m *Materializer) Path(name string) string {
	return path.Join(m.dir, name+internal.ConfigFileSuffix)
}

func (m *Materializer) Exists(name string) bool {
	_, err := os.Stat(m.Path(name))
	return err == nil
}

func (m *Materializer) Write(cfg *Ecosystem) (string, error) {
	content, err := m.renderer.Render(cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}

	configPath := m.Path(cfg.Name)
	tmp, err := os.CreateTemp(m.dir, cfg.Name+".config.js.tmp*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return configPath, nil
}

func (m *Materializer) Read(name string) (string, error) {
	content, err := os.ReadFile(m.Path(name))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (m *Materializer) Delete(name string) error {
	err := os.Remove(m.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
