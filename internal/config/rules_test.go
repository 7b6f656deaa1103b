package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/record"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const yamlRules = `
taxonomies:
  - domain: auth
    categories:
      - id: lockout
        label: Lockouts
        rules:
          - keywords: [locked]
      - id: login
        label: Login
        rules:
          - keywords: [login, logged in]
  - domain: billing
    title: Billing logs
    categories:
      - id: invoices
        label: Invoices
        rules:
          - keywords: [invoice]
          - equals: {field: type, value: invoice}
    counters:
      - id: bigInvoices
        label: Big invoices
        rules:
          - above: {field: amount, value: 1000}
    samples:
      - ago: 5m
        raw: '{"message":"Invoice sent","type":"invoice","amount":1500}'
`

const tomlRules = `
[[taxonomies]]
domain = "system"
export_fields = ["service"]

  [[taxonomies.categories]]
  id = "disk"
  label = "Disk"

    [[taxonomies.categories.rules]]
    all = ["disk", "full"]
`

func TestLoadRules_YAML(t *testing.T) {
	taxonomies, err := LoadRules(writeFile(t, "rules.yaml", yamlRules))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(taxonomies) != 2 {
		t.Fatalf("LoadRules() = %d taxonomies, want 2", len(taxonomies))
	}

	billing := taxonomies[1]
	if billing.Categories[0].Rules[1].Equals == nil || billing.Categories[0].Rules[1].Equals.Value != "invoice" {
		t.Errorf("equals clause not decoded: %+v", billing.Categories[0].Rules[1])
	}
	if billing.Samples[0].Ago != 5*time.Minute {
		t.Errorf("sample ago = %v, want 5m", billing.Samples[0].Ago)
	}
}

func TestLoadRules_TOML(t *testing.T) {
	taxonomies, err := LoadRules(writeFile(t, "rules.toml", tomlRules))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(taxonomies) != 1 || taxonomies[0].Categories[0].Rules[0].All[1] != "full" {
		t.Errorf("LoadRules() = %+v", taxonomies)
	}
}

func TestLoadRules_Errors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"unknown extension", "rules.json", `{}`},
		{"unknown yaml field", "rules.yaml", "taxonomies:\n  - domain: auth\n    colour: red\n"},
		{"empty predicate", "rules.yaml", "taxonomies:\n  - domain: auth\n    categories:\n      - id: x\n        label: X\n        rules:\n          - {}\n"},
		{"bad level", "rules.toml", "[[taxonomies]]\ndomain = \"x\"\n[[taxonomies.categories]]\nid = \"a\"\nlabel = \"A\"\n[[taxonomies.categories.rules]]\nlevel = \"loud\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRules(writeFile(t, tt.file, tt.content)); err == nil {
				t.Error("LoadRules() returned nil error")
			}
		})
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRules(missing) returned nil error")
	}
}

func TestConfig_Classifiers(t *testing.T) {
	cfg := DefaultConfig()

	builtin, err := cfg.Classifiers()
	if err != nil {
		t.Fatalf("Classifiers() error = %v", err)
	}
	if len(builtin) != len(classify.Domains()) {
		t.Fatalf("Classifiers() = %d, want %d built-ins", len(builtin), len(classify.Domains()))
	}

	cfg.Rules.File = writeFile(t, "rules.yml", yamlRules)
	classifiers, err := cfg.Classifiers()
	if err != nil {
		t.Fatalf("Classifiers() with rules error = %v", err)
	}
	if len(classifiers) != len(classify.Domains())+1 {
		t.Fatalf("Classifiers() = %d, want built-ins plus billing", len(classifiers))
	}

	auth := classifiers[0]
	if auth.Domain() != classify.DomainAuth {
		t.Fatalf("first classifier = %s, want auth", auth.Domain())
	}
	rec := &record.LogRecord{Message: "Account locked after login attempts", Level: record.LevelWarn, Meta: map[string]any{}}
	if got := auth.Classify(rec); got != "lockout" {
		t.Errorf("overridden auth Classify() = %q, want lockout", got)
	}
	// counters not in the file are inherited
	if len(auth.CounterIDs()) == 0 {
		t.Error("overridden auth lost built-in counters")
	}
	if auth.Taxonomy().Title == "" {
		t.Error("overridden auth lost built-in title")
	}

	billing := classifiers[len(classifiers)-1]
	if billing.Domain() != "billing" || billing.Taxonomy().Title != "Billing logs" {
		t.Errorf("last classifier = %s %q", billing.Domain(), billing.Taxonomy().Title)
	}
}
