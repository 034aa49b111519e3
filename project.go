package notebook

import (
	"fmt"
	"os"
	"time"

	"go.jetify.com/typeid"
	"gopkg.in/yaml.v3"
)

// NewProjectID returns a new unique project identifier
func NewProjectID() string {
	id, err := typeid.WithPrefix("proj")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// BlockDefinition declares one block in a project file. Dependencies named
// in depends_on become explicit edges; everything else is inferred from
// the source.
type BlockDefinition struct {
	Name      string    `json:"name" yaml:"name"`
	Type      BlockType `json:"type,omitempty" yaml:"type,omitempty"`
	Source    string    `json:"source" yaml:"source"`
	DependsOn []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ProjectOptions are used to configure a project.
type ProjectOptions struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Path        string             `json:"path,omitempty" yaml:"path,omitempty"`
	Blocks      []*BlockDefinition `json:"blocks" yaml:"blocks"`
}

// Project is a named, ordered collection of block definitions, typically
// loaded from a YAML file.
type Project struct {
	id           string
	name         string
	description  string
	path         string
	blocks       []*BlockDefinition
	blocksByName map[string]*BlockDefinition
}

// NewProject returns a new Project configured with the given options.
func NewProject(opts ProjectOptions) (*Project, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("project name required")
	}
	if len(opts.Blocks) == 0 {
		return nil, fmt.Errorf("blocks required")
	}

	blocksByName := make(map[string]*BlockDefinition, len(opts.Blocks))
	for _, block := range opts.Blocks {
		if block.Name == "" {
			return nil, fmt.Errorf("block name required")
		}
		if _, exists := blocksByName[block.Name]; exists {
			return nil, fmt.Errorf("duplicate block name %q", block.Name)
		}
		if block.Type == "" {
			block.Type = BlockTypeCode
		}
		blocksByName[block.Name] = block
	}
	for _, block := range opts.Blocks {
		for _, dep := range block.DependsOn {
			if _, ok := blocksByName[dep]; !ok {
				return nil, fmt.Errorf("block %q depends on unknown block %q", block.Name, dep)
			}
		}
	}

	return &Project{
		id:           NewProjectID(),
		name:         opts.Name,
		description:  opts.Description,
		path:         opts.Path,
		blocks:       opts.Blocks,
		blocksByName: blocksByName,
	}, nil
}

// ID returns the project identifier
func (p *Project) ID() string {
	return p.id
}

// Name returns the project name
func (p *Project) Name() string {
	return p.name
}

// Description returns the project description
func (p *Project) Description() string {
	return p.description
}

// Path returns the file the project was loaded from, if any
func (p *Project) Path() string {
	return p.path
}

// Definitions returns the project's block definitions in document order
func (p *Project) Definitions() []*BlockDefinition {
	return p.blocks
}

// Materialize turns the block definitions into Block records with fresh
// IDs, document-order ordinals, and depends_on names resolved to explicit
// dependency IDs.
func (p *Project) Materialize() []*Block {
	now := time.Now()
	idsByName := make(map[string]string, len(p.blocks))
	for _, def := range p.blocks {
		idsByName[def.Name] = NewBlockID()
	}
	blocks := make([]*Block, 0, len(p.blocks))
	for i, def := range p.blocks {
		block := &Block{
			ID:        idsByName[def.Name],
			ProjectID: p.id,
			Name:      def.Name,
			Type:      def.Type,
			Ordinal:   i + 1,
			Source:    def.Source,
			Status:    BlockStatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, dep := range def.DependsOn {
			block.ExplicitDeps = append(block.ExplicitDeps, idsByName[dep])
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// LoadFile loads a project from a YAML file
func LoadFile(path string) (*Project, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}
	var opts ProjectOptions
	if err := yaml.Unmarshal(yamlData, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project file: %w", err)
	}
	opts.Path = path
	return NewProject(opts)
}

// LoadString loads a project from a YAML string
func LoadString(data string) (*Project, error) {
	var opts ProjectOptions
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project file: %w", err)
	}
	return NewProject(opts)
}
