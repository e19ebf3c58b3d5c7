package hydrate

import "github.com/neo4j/neo4j-go-driver/v5/neo4j"

// GraphNode is a schema-agnostic node, ready to be serialized for graph
// visualisation clients.
type GraphNode struct {
	// ID is the node's ElementId.
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// GraphEdge is a schema-agnostic relationship between two GraphNodes.
type GraphEdge struct {
	ID string `json:"id"`
	// Source and Target are the ElementIds of the endpoints.
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Graph holds the distinct nodes and edges of a result set.
type Graph struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// NewGraph collects every node and relationship found in records, lists
// included, keeping the first occurrence of each element id.
func NewGraph(records []*neo4j.Record) *Graph {
	graph := &Graph{
		Nodes: make([]*GraphNode, 0),
		Edges: make([]*GraphEdge, 0),
	}
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)

	var visit func(value any)
	visit = func(value any) {
		switch v := value.(type) {
		case neo4j.Node:
			if !seenNodes[v.ElementId] {
				seenNodes[v.ElementId] = true
				graph.Nodes = append(graph.Nodes, &GraphNode{ID: v.ElementId, Labels: v.Labels, Properties: v.Props})
			}
		case neo4j.Relationship:
			if !seenEdges[v.ElementId] {
				seenEdges[v.ElementId] = true
				graph.Edges = append(graph.Edges, &GraphEdge{
					ID:         v.ElementId,
					Source:     v.StartElementId,
					Target:     v.EndElementId,
					Type:       v.Type,
					Properties: v.Props,
				})
			}
		case neo4j.Path:
			for _, n := range v.Nodes {
				visit(n)
			}
			for _, r := range v.Relationships {
				visit(r)
			}
		case []any:
			for _, item := range v {
				visit(item)
			}
		}
	}

	for _, record := range records {
		for _, value := range record.Values {
			visit(value)
		}
	}
	return graph
}
