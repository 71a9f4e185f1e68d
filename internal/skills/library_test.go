package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, folder, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, folder)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLibrary_DiscoversAndParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "email-digest", `---
name: email-digest
description: Summarize unread email into a short digest.
---
Fetch unread messages, group by sender, summarize.`)

	lib := NewLibrary(dir)
	skills := lib.List()
	if len(skills) != 1 {
		t.Fatalf("got %d skills, want 1", len(skills))
	}
	if skills[0].Name != "email-digest" {
		t.Errorf("name = %q", skills[0].Name)
	}
	if !strings.Contains(skills[0].Description, "digest") {
		t.Errorf("description = %q", skills[0].Description)
	}

	body, ok := lib.Load("email-digest")
	if !ok {
		t.Fatal("load failed")
	}
	if strings.Contains(body, "---") || strings.Contains(body, "description:") {
		t.Errorf("frontmatter not stripped: %q", body)
	}
	if !strings.Contains(body, "group by sender") {
		t.Errorf("body = %q", body)
	}
}

func TestLibrary_EarlierDirShadowsLater(t *testing.T) {
	primary := t.TempDir()
	fallback := t.TempDir()
	writeSkill(t, primary, "health-check", "---\nname: health-check\ndescription: local\n---\nlocal version")
	writeSkill(t, fallback, "health-check", "---\nname: health-check\ndescription: global\n---\nglobal version")

	lib := NewLibrary(primary, fallback)
	skills := lib.List()
	if len(skills) != 1 {
		t.Fatalf("got %d skills, want 1", len(skills))
	}
	if skills[0].Description != "local" {
		t.Errorf("shadowing broken: %+v", skills[0])
	}
	body, _ := lib.Load("health-check")
	if body != "local version" {
		t.Errorf("body = %q", body)
	}
}

func TestLibrary_BaseDirExpansion(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "scripts", "---\nname: scripts\ndescription: d\n---\nrun {baseDir}/run.sh")

	lib := NewLibrary(dir)
	body, ok := lib.Load("scripts")
	if !ok {
		t.Fatal("load failed")
	}
	want := filepath.Join(dir, "scripts") + "/run.sh"
	if !strings.Contains(body, want) {
		t.Errorf("body = %q, want to contain %q", body, want)
	}
}

func TestLibrary_SummaryEmptyWithoutSkills(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	if s := lib.Summary(); s != "" {
		t.Errorf("summary = %q, want empty", s)
	}
}

func TestLibrary_ReloadBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)
	v1 := lib.Version()

	writeSkill(t, dir, "new-skill", "---\nname: new-skill\ndescription: d\n---\nbody")
	lib.Reload()

	if lib.Version() == v1 {
		t.Error("version unchanged after reload")
	}
	if len(lib.List()) != 1 {
		t.Error("reload did not pick up new skill")
	}
}

func TestLibrary_MissingFrontmatterUsesFolderName(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "bare", "just instructions, no frontmatter")

	lib := NewLibrary(dir)
	skills := lib.List()
	if len(skills) != 1 || skills[0].Name != "bare" {
		t.Fatalf("skills = %+v", skills)
	}
	body, _ := lib.Load("bare")
	if body != "just instructions, no frontmatter" {
		t.Errorf("body = %q", body)
	}
}
