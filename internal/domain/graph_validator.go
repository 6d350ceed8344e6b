package domain

import (
	"fmt"

	"github.com/nexuscrm/workflow/internal/domain/models"
)

// Issue codes reported by ValidateGraph.
const (
	IssueEmptyWorkflow          = "EmptyWorkflow"
	IssueMissingStartNode       = "MissingStartNode"
	IssueMissingEndNode         = "MissingEndNode"
	IssueMultipleStartNodes     = "MultipleStartNodes"
	IssueUnreachableNode        = "UnreachableNode"
	IssueDeadEndNode            = "DeadEndNode"
	IssueDuplicateNodeID        = "DuplicateNodeId"
	IssueUnknownConnectionNode  = "UnknownConnectionNode"
	IssueConditionOnNonDecision = "ConditionOnNonDecision"
	IssueInvalidCondition       = "InvalidCondition"
)

// ValidationIssue is one error or warning found in a graph
type ValidationIssue struct {
	Code    string `json:"code"`
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is returned as data; it never blocks saving a definition.
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Codes returns the error codes, in order.
func (r ValidationResult) Codes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

// ValidateGraph checks the structure of a definition graph. It is pure: the
// same graph always yields the same result, with issues listed in node
// declaration order followed by connection order. Only a missing start or
// end node (or an empty graph) makes the graph invalid.
func ValidateGraph(g models.Graph) ValidationResult {
	result := ValidationResult{
		Errors:   []ValidationIssue{},
		Warnings: []ValidationIssue{},
	}

	if len(g.Nodes) == 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    IssueEmptyWorkflow,
			Message: "workflow has no nodes",
		})
		return result
	}

	known := make(map[string]models.NodeType, len(g.Nodes))
	incoming := make(map[string]int)
	outgoing := make(map[string]int)
	for _, c := range g.Connections {
		outgoing[c.SourceNodeID]++
		incoming[c.TargetNodeID]++
	}

	starts, ends := 0, 0
	for _, n := range g.Nodes {
		if _, dup := known[n.ID]; dup {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Code:    IssueDuplicateNodeID,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node id '%s' is declared more than once", n.ID),
			})
			continue
		}
		known[n.ID] = n.Type

		switch n.Type {
		case models.NodeTypeStart:
			starts++
		case models.NodeTypeEnd:
			ends++
		}

		if n.Type != models.NodeTypeStart && incoming[n.ID] == 0 {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Code:    IssueUnreachableNode,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node '%s' has no incoming connection", n.ID),
			})
		}
		if n.Type != models.NodeTypeEnd && outgoing[n.ID] == 0 {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Code:    IssueDeadEndNode,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node '%s' has no outgoing connection", n.ID),
			})
		}
	}

	if starts == 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    IssueMissingStartNode,
			Message: "workflow has no start node",
		})
	} else if starts > 1 {
		result.Warnings = append(result.Warnings, ValidationIssue{
			Code:    IssueMultipleStartNodes,
			Message: fmt.Sprintf("workflow has %d start nodes; the first declared is used", starts),
		})
	}
	if ends == 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    IssueMissingEndNode,
			Message: "workflow has no end node",
		})
	}

	for _, c := range g.Connections {
		for _, id := range []string{c.SourceNodeID, c.TargetNodeID} {
			if _, ok := known[id]; !ok {
				result.Warnings = append(result.Warnings, ValidationIssue{
					Code:    IssueUnknownConnectionNode,
					NodeID:  id,
					Message: fmt.Sprintf("connection %s -> %s references unknown node '%s'", c.SourceNodeID, c.TargetNodeID, id),
				})
			}
		}
		if c.Condition != "" {
			if t, ok := known[c.SourceNodeID]; ok && t != models.NodeTypeDecision {
				result.Warnings = append(result.Warnings, ValidationIssue{
					Code:    IssueConditionOnNonDecision,
					NodeID:  c.SourceNodeID,
					Message: fmt.Sprintf("condition on connection from non-decision node '%s' is ignored", c.SourceNodeID),
				})
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// CheckConditions appends an InvalidCondition warning to r for every
// connection condition that compile rejects. Warnings never change IsValid.
func (r *ValidationResult) CheckConditions(g models.Graph, compile func(expression string) error) {
	for _, c := range g.Connections {
		if c.Condition == "" {
			continue
		}
		if err := compile(c.Condition); err != nil {
			r.Warnings = append(r.Warnings, ValidationIssue{
				Code:    IssueInvalidCondition,
				NodeID:  c.SourceNodeID,
				Message: fmt.Sprintf("condition %q on %s -> %s does not compile: %v", c.Condition, c.SourceNodeID, c.TargetNodeID, err),
			})
		}
	}
}
