// Package skills discovers SKILL.md playbooks and serves them to the agent.
// A skill is a directory holding a SKILL.md with YAML frontmatter (name,
// description) followed by free-form instructions. A summary of available
// skills is injected into the system prompt; the model pulls full content
// on demand through the read_skill tool.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Skill describes one discovered playbook.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"` // absolute path to SKILL.md
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Library scans skill directories in priority order; an earlier directory
// shadows a later one by skill name.
type Library struct {
	dirs []string

	mu      sync.RWMutex
	byName  map[string]Skill
	ordered []Skill

	// Bumped by the watcher so prompt builders can detect staleness.
	version atomic.Int64
}

func NewLibrary(dirs ...string) *Library {
	var nonEmpty []string
	for _, d := range dirs {
		if d != "" {
			nonEmpty = append(nonEmpty, d)
		}
	}
	l := &Library{dirs: nonEmpty, byName: make(map[string]Skill)}
	l.Reload()
	return l
}

// Reload rescans all skill directories.
func (l *Library) Reload() {
	byName := make(map[string]Skill)
	var ordered []Skill

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name(), "SKILL.md")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			s := Skill{Name: e.Name(), Path: path}
			if fm, _ := splitFrontmatter(string(data)); fm != nil {
				if fm.Name != "" {
					s.Name = fm.Name
				}
				s.Description = fm.Description
			}
			if _, shadowed := byName[s.Name]; shadowed {
				continue
			}
			byName[s.Name] = s
			ordered = append(ordered, s)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	l.mu.Lock()
	l.byName = byName
	l.ordered = ordered
	l.mu.Unlock()
	l.version.Store(time.Now().UnixNano())
}

// List returns all skills sorted by name.
func (l *Library) List() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Skill, len(l.ordered))
	copy(out, l.ordered)
	return out
}

// Load returns a skill's instructions with the frontmatter stripped and
// {baseDir} expanded to the skill's directory.
func (l *Library) Load(name string) (string, bool) {
	l.mu.RLock()
	s, ok := l.byName[name]
	l.mu.RUnlock()
	if !ok {
		return "", false
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", false
	}
	_, body := splitFrontmatter(string(data))
	body = strings.ReplaceAll(body, "{baseDir}", filepath.Dir(s.Path))
	return strings.TrimSpace(body), true
}

// Summary renders the skill catalog for system prompt injection. Empty when
// no skills exist.
func (l *Library) Summary() string {
	skills := l.List()
	if len(skills) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Available skills\n")
	sb.WriteString("Use the read_skill tool to load a skill's full instructions before applying it.\n")
	for _, s := range skills {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	return sb.String()
}

// Version changes whenever the library is reloaded.
func (l *Library) Version() int64 { return l.version.Load() }

// Dirs returns the scanned directories, for the watcher.
func (l *Library) Dirs() []string { return l.dirs }

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

func splitFrontmatter(content string) (*frontmatter, string) {
	m := frontmatterRe.FindStringSubmatch(content)
	if len(m) < 2 {
		return nil, content
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return nil, content
	}
	return &fm, frontmatterRe.ReplaceAllString(content, "")
}
