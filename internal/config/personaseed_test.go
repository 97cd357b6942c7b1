package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPersonaSeedParsesRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	content := `
personas:
  - name: Alex Rivera
    role: Engineering Lead
    email_address: alex@example.com
    chat_handle: "@alex"
    work_hours: "09:00-17:00"
    is_department_head: true
  - name: Bao Nguyen
    role: Engineer
    email_address: bao@example.com
    chat_handle: "@bao"
    work_hours: "09:00-17:00"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	personas, err := LoadPersonaSeed(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(personas) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(personas))
	}
	if personas[0].Name != "Alex Rivera" || !personas[0].IsDepartmentHead {
		t.Errorf("unexpected first persona: %+v", personas[0])
	}
	if personas[1].Name != "Bao Nguyen" || personas[1].IsDepartmentHead {
		t.Errorf("unexpected second persona: %+v", personas[1])
	}
}

func TestLoadPersonaSeedRejectsUnnamedEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	content := "personas:\n  - role: Engineer\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	if _, err := LoadPersonaSeed(path); err == nil {
		t.Fatal("expected an error for a persona entry without a name")
	}
}

func TestLoadPersonaSeedMissingFile(t *testing.T) {
	if _, err := LoadPersonaSeed(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing seed file")
	}
}
