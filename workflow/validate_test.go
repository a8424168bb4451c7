package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// linearWorkflow builds start -> browser_navigate -> end with a valid url.
func linearWorkflow() *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:   "wf-1",
		Name: "Linear",
		Nodes: map[string]*NodeDefinition{
			"start": {
				ID:                  "start",
				Type:                NodeTypeStart,
				OutgoingConnections: []string{"nav"},
			},
			"nav": {
				ID:                  "nav",
				Type:                NodeTypeBrowserNavigate,
				Config:              map[string]any{"url": "https://x"},
				OutgoingConnections: []string{"end"},
			},
			"end": {
				ID:   "end",
				Type: NodeTypeEnd,
			},
		},
	}
}

func TestValidateAcceptsLinearWorkflow(t *testing.T) {
	require.NoError(t, Validate(linearWorkflow()))
}

func TestValidateStartNodeRules(t *testing.T) {
	t.Run("missing start", func(t *testing.T) {
		w := linearWorkflow()
		delete(w.Nodes, "start")
		w.Nodes["nav"].OutgoingConnections = []string{"end"}
		err := Validate(w)
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Reasons[0], "missing a start node")
	})

	t.Run("multiple starts", func(t *testing.T) {
		w := linearWorkflow()
		w.Nodes["start2"] = &NodeDefinition{
			ID:                  "start2",
			Type:                NodeTypeStart,
			OutgoingConnections: []string{"nav"},
		}
		err := Validate(w)
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Reasons[0], "multiple start nodes")
	})
}

func TestValidateRequiresEndNode(t *testing.T) {
	w := linearWorkflow()
	delete(w.Nodes, "end")
	w.Nodes["nav"].OutgoingConnections = []string{"start"}
	err := Validate(w)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Error(), "missing an end node")
}

func TestValidateDisconnectedNode(t *testing.T) {
	w := linearWorkflow()
	w.Nodes["orphan"] = &NodeDefinition{ID: "orphan", Type: NodeTypeLog}
	err := Validate(w)
	require.Error(t, err)
	require.Contains(t, err.Error(), `node "orphan" is disconnected`)
}

func TestValidateUnknownConnectionTarget(t *testing.T) {
	w := linearWorkflow()
	w.Nodes["nav"].OutgoingConnections = append(w.Nodes["nav"].OutgoingConnections, "ghost")
	err := Validate(w)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown node "ghost"`)
}

func TestValidateRequiredConfigFields(t *testing.T) {
	tests := []struct {
		name     string
		nodeType NodeType
		config   map[string]any
		wantErr  bool
	}{
		{"browser_navigate without url", NodeTypeBrowserNavigate, nil, true},
		{"browser_navigate with blank url", NodeTypeBrowserNavigate, map[string]any{"url": "   "}, true},
		{"browser_navigate with url", NodeTypeBrowserNavigate, map[string]any{"url": "https://x"}, false},
		{"email_send missing subject", NodeTypeEmailSend, map[string]any{"to": "a@b.c"}, true},
		{"email_send complete", NodeTypeEmailSend, map[string]any{"to": "a@b.c", "subject": "hi"}, false},
		{"database_query without query", NodeTypeDatabaseQuery, map[string]any{}, true},
		{"condition without expression", NodeTypeCondition, nil, true},
		{"condition with expression", NodeTypeCondition, map[string]any{"condition": "x > 1"}, false},
		{"unknown type has no required fields", NodeType("custom_thing"), nil, false},
		{"log has no required fields", NodeTypeLog, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := linearWorkflow()
			w.Nodes["subject"] = &NodeDefinition{
				ID:                  "subject",
				Type:                tc.nodeType,
				Config:              tc.config,
				OutgoingConnections: []string{"end"},
			}
			err := Validate(w)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "requires config field")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateCollectsAllReasons(t *testing.T) {
	w := &WorkflowDefinition{
		ID:   "wf-broken",
		Name: "Broken",
		Nodes: map[string]*NodeDefinition{
			"nav": {ID: "nav", Type: NodeTypeBrowserNavigate},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// missing start, missing end, disconnected nav, missing url
	require.Len(t, verr.Reasons, 4)
}

func TestValidateLenientAboutUnreachableLoops(t *testing.T) {
	// Two nodes connected in a loop that is unreachable from start still
	// pass: only local out-degree is checked, not reachability.
	w := linearWorkflow()
	w.Nodes["a"] = &NodeDefinition{ID: "a", Type: NodeTypeLog, OutgoingConnections: []string{"b"}}
	w.Nodes["b"] = &NodeDefinition{ID: "b", Type: NodeTypeLog, OutgoingConnections: []string{"a"}}
	require.NoError(t, Validate(w))
}
