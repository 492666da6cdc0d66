package services

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"admsserver/models"
)

//go:embed commands.yaml
var defaultCatalog []byte

// ErrInvalidCommand는 카탈로그에 없는 명령이거나 파라미터가 스키마에 맞지 않을 때 반환됩니다.
var ErrInvalidCommand = errors.New("invalid command")

// ParamSchema는 명령 파라미터 스키마입니다.
// List가 true이면 값 목록, 아니면 key=value 객체를 받습니다.
type ParamSchema struct {
	Allowed  []string `yaml:"allowed" json:"allowed,omitempty"`
	Required []string `yaml:"required" json:"required,omitempty"`
	List     bool     `yaml:"list" json:"list"`
	MinItems int      `yaml:"min_items" json:"min_items,omitempty"`
	MaxItems int      `yaml:"max_items" json:"max_items,omitempty"`
}

// CommandSpec은 명령 이름과 단말기 전송 문자열의 매핑입니다.
type CommandSpec struct {
	Name    string      `yaml:"name" json:"name"`
	Command string      `yaml:"command" json:"command"`
	Params  ParamSchema `yaml:"params" json:"params"`
}

// CommandCatalog는 생성 가능한 명령 목록입니다.
type CommandCatalog struct {
	specs map[string]CommandSpec
}

// LoadCatalog는 path의 YAML 카탈로그를 읽습니다. path가 비어 있으면 내장 카탈로그를 사용합니다.
func LoadCatalog(path string) (*CommandCatalog, error) {
	raw := defaultCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read command catalog: %w", err)
		}
		raw = data
	}
	return ParseCatalog(raw)
}

// ParseCatalog는 YAML 카탈로그를 파싱합니다.
func ParseCatalog(raw []byte) (*CommandCatalog, error) {
	var doc struct {
		Commands []CommandSpec `yaml:"commands"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse command catalog: %w", err)
	}

	c := &CommandCatalog{specs: make(map[string]CommandSpec, len(doc.Commands))}
	for _, spec := range doc.Commands {
		spec.Name = strings.TrimSpace(spec.Name)
		spec.Command = strings.TrimSpace(spec.Command)
		if spec.Name == "" || spec.Command == "" {
			return nil, fmt.Errorf("parse command catalog: entry without name or command")
		}
		if _, dup := c.specs[spec.Name]; dup {
			return nil, fmt.Errorf("parse command catalog: duplicate command %q", spec.Name)
		}
		c.specs[spec.Name] = spec
	}
	return c, nil
}

// Names는 등록된 명령 이름을 정렬하여 반환합니다.
func (c *CommandCatalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for n := range c.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup은 이름으로 명령을 찾습니다.
func (c *CommandCatalog) Lookup(name string) (CommandSpec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return CommandSpec{}, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, name)
	}
	return spec, nil
}

// Validate는 이름과 파라미터를 검사하고 전송 문자열을 반환합니다.
func (c *CommandCatalog) Validate(name string, params models.CommandParams) (CommandSpec, error) {
	spec, err := c.Lookup(name)
	if err != nil {
		return CommandSpec{}, err
	}
	if err := spec.Params.check(params); err != nil {
		return CommandSpec{}, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, name, err)
	}
	return spec, nil
}

// wireSafe는 getrequest 한 줄에 그대로 실리는 값에 줄바꿈, 탭 등 제어 문자가 없는지 확인합니다.
func wireSafe(p models.CommandParams) error {
	for _, v := range p.Values {
		if strings.IndexFunc(v, unicode.IsControl) >= 0 {
			return fmt.Errorf("param %q contains control characters", v)
		}
	}
	for _, pair := range p.Pairs {
		if strings.IndexFunc(pair.Key, unicode.IsControl) >= 0 || strings.ContainsAny(pair.Key, "= ") {
			return fmt.Errorf("invalid param name %q", pair.Key)
		}
		if strings.IndexFunc(pair.Value, unicode.IsControl) >= 0 {
			return fmt.Errorf("param %q contains control characters", pair.Key)
		}
	}
	return nil
}

func (s ParamSchema) check(p models.CommandParams) error {
	if err := wireSafe(p); err != nil {
		return err
	}
	if s.List {
		if p.Len() > 0 && !p.IsList {
			return fmt.Errorf("params must be a list")
		}
		if s.MinItems > 0 && p.Len() < s.MinItems {
			return fmt.Errorf("at least %d params required", s.MinItems)
		}
		if s.MaxItems > 0 && p.Len() > s.MaxItems {
			return fmt.Errorf("at most %d params allowed", s.MaxItems)
		}
		return nil
	}

	if p.IsList && p.Len() > 0 {
		return fmt.Errorf("params must be an object")
	}
	allowed := make(map[string]bool, len(s.Allowed))
	for _, k := range s.Allowed {
		allowed[k] = true
	}
	for _, k := range p.Keys() {
		if !allowed[k] {
			return fmt.Errorf("unexpected param %q", k)
		}
	}
	for _, k := range s.Required {
		if v, ok := p.Get(k); !ok || strings.TrimSpace(v) == "" {
			return fmt.Errorf("missing param %q", k)
		}
	}
	return nil
}
