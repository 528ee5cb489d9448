package command

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lessonlab/codepad/internal/config"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewVersionCommand("1.0.0"))
	r.Register(NewHelpCommand(r))

	if _, err := r.Get("version"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("unknown command resolved")
	}
	names := r.List()
	if len(names) != 2 || names[0] != "help" || names[1] != "version" {
		t.Errorf("List = %v", names)
	}
}

func TestHelpListsCommands(t *testing.T) {
	r := NewRegistry()
	r.Register(NewVersionCommand("1.0.0"))
	help := NewHelpCommand(r)
	r.Register(help)

	var out, errOut bytes.Buffer
	if err := help.Execute(nil, &out, &errOut); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"codepad", "version", "help"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, out.String())
		}
	}
}

func TestHelpSpecificCommandShowsFlags(t *testing.T) {
	r := NewRegistry()
	cfg := config.NewConfig()
	r.Register(NewRunCommand(cfg))
	help := NewHelpCommand(r)

	var out, errOut bytes.Buffer
	if err := help.Execute([]string{"run"}, &out, &errOut); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: run") {
		t.Errorf("missing usage:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "-state") {
		t.Errorf("missing flag listing:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := NewVersionCommand("0.3.1")
	if err := cmd.Execute(nil, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "codepad version 0.3.1") {
		t.Errorf("output = %q", out.String())
	}
	if err := cmd.Execute([]string{"extra"}, &out, &errOut); err == nil {
		t.Error("unexpected arguments accepted")
	}
}

func TestConfigGetSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	cfg := config.NewConfig()
	cmd := NewConfigCommand(cfg, path)

	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{"color", "never"}, &out, &errOut); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := cfg.GetGlobalOption("color"); v != "never" {
		t.Errorf("color = %q", v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if !strings.Contains(string(data), "color never") {
		t.Errorf("persisted config:\n%s", data)
	}

	out.Reset()
	if err := cmd.Execute([]string{"color"}, &out, &errOut); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out.String(), "color: never") {
		t.Errorf("get output = %q", out.String())
	}

	// Unset keys resolve through the schema default.
	out.Reset()
	if err := cmd.Execute([]string{"log.level"}, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "log.level: info") {
		t.Errorf("schema default not resolved: %q", out.String())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetGlobalOption("mystery", "1")
	cmd := NewConfigCommand(cfg, "")

	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{"validate"}, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "mystery") {
		t.Errorf("validate output = %q", out.String())
	}
}

func TestConfigSchemaSubcommand(t *testing.T) {
	cmd := NewConfigCommand(config.NewConfig(), "")
	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{"schema"}, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Global Options:", "[engine] Options:", "bootTimeout"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("schema output missing %q", want)
		}
	}
}
