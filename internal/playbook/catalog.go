// Package playbook implements the PKG state machine: a declarative directed
// graph of automation states with entry conditions over indicator symbols,
// ordered steps, and conditional transitions. The graph is loaded from YAML
// and injected into the engine; it is deliberately not a DAG, revisiting
// states through optimization/measurement cycles is expected.
package playbook

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// NodeType classifies graph nodes.
type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeIndicator NodeType = "indicator"
	NodeAction    NodeType = "action"
	NodeDecision  NodeType = "decision"
	NodeEnd       NodeType = "end"
)

// StepKind classifies the steps listed under a node.
type StepKind string

const (
	StepAnalysis     StepKind = "analysis"
	StepAction       StepKind = "action"
	StepNotification StepKind = "notification"
	StepDecision     StepKind = "decision"
	StepTest         StepKind = "test"
)

// Step is one ordered unit of work inside a node.
type Step struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Kind        StepKind `yaml:"kind"`
	Description string   `yaml:"description,omitempty"`
	Automated   bool     `yaml:"automated"`
	Required    bool     `yaml:"required"`
}

// Branch is one outgoing transition. Probability is an empirical statistic
// carried for reporting; a node's probabilities are not required to sum to 1
// and selection never draws from them.
type Branch struct {
	Condition   string  `yaml:"condition"`
	Target      string  `yaml:"target"`
	Probability float64 `yaml:"probability,omitempty"`
}

// Node is one PKG state.
type Node struct {
	ID          string   `yaml:"id"`
	Type        NodeType `yaml:"type"`
	Label       string   `yaml:"label,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Condition   string   `yaml:"condition,omitempty"`
	Steps       []Step   `yaml:"steps,omitempty"`
	Branches    []Branch `yaml:"branches,omitempty"`
}

// Terminal reports whether the node ends the playbook.
func (n *Node) Terminal() bool {
	return n.Type == NodeEnd
}

// NextTarget returns the first branch whose condition holds for the given
// indicators. Branch order in the catalog is the tie-breaker.
func (n *Node) NextTarget(ind Indicators) (Branch, bool) {
	for _, b := range n.Branches {
		if EvalCondition(b.Condition, ind) {
			return b, true
		}
	}
	return Branch{}, false
}

// Catalog is one loaded playbook graph.
type Catalog struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Nodes   []Node `yaml:"nodes"`

	byID map[string]*Node
}

// Load parses a catalog from a YAML file and validates the graph.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "playbook: read catalog %s", path)
	}
	return Parse(data)
}

// Parse parses and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "playbook: parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDir loads every .yaml/.yml catalog in a directory, keyed by catalog ID.
func LoadDir(dir string) (map[string]*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "playbook: read catalog dir %s", dir)
	}

	catalogs := make(map[string]*Catalog)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		c, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := catalogs[c.ID]; dup {
			return nil, eris.Errorf("playbook: duplicate catalog id %s", c.ID)
		}
		catalogs[c.ID] = c
	}
	if len(catalogs) == 0 {
		return nil, eris.Errorf("playbook: no catalogs found in %s", dir)
	}
	return catalogs, nil
}

// Validate checks the structural invariants: exactly one start node, at
// least one end node, unique node IDs, and every branch target resolving to
// a node. Cycles are legal; optimization loops revisit earlier states.
func (c *Catalog) Validate() error {
	if c.ID == "" {
		return eris.New("playbook: catalog id required")
	}

	c.byID = make(map[string]*Node, len(c.Nodes))
	var starts, ends int
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.ID == "" {
			return eris.Errorf("playbook: catalog %s has a node without an id", c.ID)
		}
		if _, dup := c.byID[n.ID]; dup {
			return eris.Errorf("playbook: catalog %s has duplicate node %s", c.ID, n.ID)
		}
		c.byID[n.ID] = n
		switch n.Type {
		case NodeStart:
			starts++
		case NodeEnd:
			ends++
		case NodeIndicator, NodeAction, NodeDecision:
		default:
			return eris.Errorf("playbook: node %s has unknown type %q", n.ID, n.Type)
		}
	}
	if starts != 1 {
		return eris.Errorf("playbook: catalog %s needs exactly one start node, found %d", c.ID, starts)
	}
	if ends == 0 {
		return eris.Errorf("playbook: catalog %s needs at least one end node", c.ID)
	}

	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.Terminal() && len(n.Branches) > 0 {
			return eris.Errorf("playbook: end node %s cannot have branches", n.ID)
		}
		if !n.Terminal() && len(n.Branches) == 0 {
			return eris.Errorf("playbook: node %s has no outgoing branches", n.ID)
		}
		for _, b := range n.Branches {
			if _, ok := c.byID[b.Target]; !ok {
				return eris.Errorf("playbook: node %s branches to unknown node %s", n.ID, b.Target)
			}
		}
	}
	return nil
}

// Start returns the catalog's start node.
func (c *Catalog) Start() *Node {
	for i := range c.Nodes {
		if c.Nodes[i].Type == NodeStart {
			return &c.Nodes[i]
		}
	}
	return nil
}

// Node looks up a node by ID.
func (c *Catalog) Node(id string) (*Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// Phases returns the number of non-start nodes, used as the phase total for
// progress reporting.
func (c *Catalog) Phases() int {
	count := 0
	for i := range c.Nodes {
		if c.Nodes[i].Type != NodeStart {
			count++
		}
	}
	return count
}
