package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// TelegramCreds are bot credentials carried by the local rules file.
// The human escalation tier is disabled unless both Token and ChatID are set.
type TelegramCreds struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// fileDoc is the on-disk layout of a rules file.
type fileDoc struct {
	Rules    []ruleDoc      `yaml:"rules"`
	Telegram *TelegramCreds `yaml:"telegram,omitempty"`
}

type ruleDoc struct {
	Tool     string `yaml:"tool"`
	Prefix   string `yaml:"prefix,omitempty"`
	Regex    string `yaml:"regex,omitempty"`
	Decision string `yaml:"decision"`
}

// Load builds the layered rule set: builtin defaults, then the project file,
// then the user-local file. Missing files are skipped. Malformed entries in a
// file are ignored rather than failing the whole load; a file that is not
// valid YAML at all is an error. The local file's Telegram credentials, if
// present, are returned alongside the rules.
func Load(projectPath, localPath string) (*RuleSet, *TelegramCreds, error) {
	set := &RuleSet{}
	for _, r := range builtinRules() {
		rule, err := compile(r)
		if err != nil {
			return nil, nil, fmt.Errorf("builtin rule %q: %w", r.Regex, err)
		}
		set.rules = append(set.rules, rule)
	}

	if projectPath != "" {
		loaded, _, err := loadFile(projectPath, OriginProject)
		if err != nil {
			return nil, nil, err
		}
		set.rules = append(set.rules, loaded...)
	}

	var creds *TelegramCreds
	if localPath != "" {
		loaded, tg, err := loadFile(localPath, OriginLocal)
		if err != nil {
			return nil, nil, err
		}
		set.rules = append(set.rules, loaded...)
		creds = tg
	}
	return set, creds, nil
}

func loadFile(path string, origin Origin) ([]Rule, *TelegramCreds, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read rules file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	var out []Rule
	for _, rd := range doc.Rules {
		r, ok := validate(rd, origin)
		if !ok {
			continue
		}
		compiled, err := compile(r)
		if err != nil {
			continue
		}
		out = append(out, compiled)
	}
	return out, doc.Telegram, nil
}

// validate rejects malformed entries instead of crashing on them.
func validate(rd ruleDoc, origin Origin) (Rule, bool) {
	tool := strings.TrimSpace(rd.Tool)
	if tool == "" {
		return Rule{}, false
	}
	var decision Decision
	switch Decision(strings.ToLower(strings.TrimSpace(rd.Decision))) {
	case Allow:
		decision = Allow
	case Deny:
		decision = Deny
	case Ask:
		decision = Ask
	default:
		return Rule{}, false
	}
	if rd.Prefix != "" && rd.Regex != "" {
		return Rule{}, false
	}
	return Rule{
		Tool:     tool,
		Prefix:   rd.Prefix,
		Regex:    rd.Regex,
		Decision: decision,
		Origin:   origin,
	}, true
}

func compile(r Rule) (Rule, error) {
	if r.Regex == "" {
		return r, nil
	}
	re, err := regexp.Compile(r.Regex)
	if err != nil {
		return Rule{}, err
	}
	r.re = re
	return r, nil
}
