package workflow

// NodeType identifies the operation a node performs. The set is closed:
// every type the engine understands has a constant here, and per-type
// configuration requirements live in one table so adding a type is a
// single, centrally-checked change.
type NodeType string

const (
	NodeTypeStart           NodeType = "start"
	NodeTypeEnd             NodeType = "end"
	NodeTypeBrowserOpen     NodeType = "browser_open"
	NodeTypeBrowserNavigate NodeType = "browser_navigate"
	NodeTypeBrowserExtract  NodeType = "browser_extract"
	NodeTypeBrowserClose    NodeType = "browser_close"
	NodeTypeExcelRead       NodeType = "excel_read"
	NodeTypeExcelWrite      NodeType = "excel_write"
	NodeTypeEmailSend       NodeType = "email_send"
	NodeTypeFileScan        NodeType = "file_scan"
	NodeTypeFileWrite       NodeType = "file_write"
	NodeTypeHTTPRequest     NodeType = "http_request"
	NodeTypePythonScript    NodeType = "python_script"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeLoop            NodeType = "loop"
	NodeTypeLog             NodeType = "log"
	NodeTypeDatabaseConnect NodeType = "database_connect"
	NodeTypeDatabaseQuery   NodeType = "database_query"
	NodeTypeDatabaseExecute NodeType = "database_execute"
	NodeTypeDatabaseClose   NodeType = "database_close"
)

func (t NodeType) String() string {
	return string(t)
}

// requiredConfig maps a node type to the config keys that must hold a
// non-blank value before the workflow may be submitted. Types absent from
// the table have no required fields, which also covers unknown types.
var requiredConfig = map[NodeType][]string{
	NodeTypeBrowserNavigate: {"url"},
	NodeTypeEmailSend:       {"to", "subject"},
	NodeTypeDatabaseQuery:   {"query"},
	NodeTypeCondition:       {"condition"},
}

// RequiredConfig returns the config keys a node of this type must set.
func (t NodeType) RequiredConfig() []string {
	return requiredConfig[t]
}

// Position is a canvas layout coordinate. It carries no execution meaning,
// but the order resolver uses it to break ties deterministically.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeDefinition describes a single step in a workflow graph.
type NodeDefinition struct {
	ID                  string         `json:"id"`
	Type                NodeType       `json:"type"`
	Name                string         `json:"name,omitempty"`
	Position            Position       `json:"position"`
	Config              map[string]any `json:"config,omitempty"`
	OutgoingConnections []string       `json:"connections,omitempty"`
}

// DisplayName returns the node's name, falling back to its id.
func (n *NodeDefinition) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// ConfigString returns the named config value when it is a string.
func (n *NodeDefinition) ConfigString(key string) (string, bool) {
	value, ok := n.Config[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
