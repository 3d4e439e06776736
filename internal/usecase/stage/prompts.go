package stage

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type promptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type prompt struct {
	system *template.Template
	user   *template.Template
}

// Prompts are the parsed templates keyed by stage.
type Prompts struct {
	byName map[string]prompt
}

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() *Prompts { return defaultPrompts }

var defaultPrompts = mustParsePrompts(promptsYAML)

func mustParsePrompts(b []byte) *Prompts {
	p, err := ParsePrompts(b)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePrompts reads a YAML map of name -> {system, user} templates.
func ParsePrompts(b []byte) (*Prompts, error) {
	var raw map[string]promptPair
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	out := &Prompts{byName: make(map[string]prompt, len(raw))}
	for name, pp := range raw {
		sys, err := template.New(name + ".system").Option("missingkey=error").Parse(pp.System)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		usr, err := template.New(name + ".user").Option("missingkey=error").Parse(pp.User)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		out.byName[name] = prompt{system: sys, user: usr}
	}
	for _, name := range []string{"topic_refiner", "drafter", "rater", "rewriter"} {
		if _, ok := out.byName[name]; !ok {
			return nil, fmt.Errorf("prompt %s missing", name)
		}
	}
	return out, nil
}

// Render executes the named pair with data.
func (p *Prompts) Render(name string, data any) (system, user string, err error) {
	pr, ok := p.byName[name]
	if !ok {
		return "", "", fmt.Errorf("prompt %s not found", name)
	}
	var sb, ub strings.Builder
	if err := pr.system.Execute(&sb, data); err != nil {
		return "", "", err
	}
	if err := pr.user.Execute(&ub, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}
