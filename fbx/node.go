// Package fbx reads binary FBX files (Kaydara FBX Binary, versions 7100
// through 7700) into a generic node tree and imports their scene content
// (models, skinned geometry, animation takes) into a scene document.
package fbx

import "strings"

// Node is one record of the FBX tree: a name, a property list and child
// records. Property values keep the Go type matching the file's typecode
// (int16, bool, int32, float32, float64, int64, typed slices, string,
// []byte for raw).
type Node struct {
	Name       string
	Properties []interface{}
	Nodes      []*Node
}

func (n *Node) GetNode(name string) *Node {
	for _, child := range n.Nodes {
		if child.Name == name {
			return child
		}
	}
	return nil
}

func (n *Node) GetNodes(name string) []*Node {
	var out []*Node
	for _, child := range n.Nodes {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

func (n *Node) PropInt64(i int) int64 {
	if i >= len(n.Properties) {
		return 0
	}
	switch v := n.Properties[i].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	}
	return 0
}

func (n *Node) PropFloat(i int) float64 {
	if i >= len(n.Properties) {
		return 0
	}
	switch v := n.Properties[i].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return 0
}

func (n *Node) PropString(i int) string {
	if i >= len(n.Properties) {
		return ""
	}
	if s, ok := n.Properties[i].(string); ok {
		return s
	}
	return ""
}

func (n *Node) PropFloatSlice(i int) []float64 {
	if i >= len(n.Properties) {
		return nil
	}
	switch v := n.Properties[i].(type) {
	case []float64:
		return v
	case []float32:
		out := make([]float64, len(v))
		for j, f := range v {
			out[j] = float64(f)
		}
		return out
	}
	return nil
}

func (n *Node) PropIntSlice(i int) []int64 {
	if i >= len(n.Properties) {
		return nil
	}
	switch v := n.Properties[i].(type) {
	case []int64:
		return v
	case []int32:
		out := make([]int64, len(v))
		for j, x := range v {
			out[j] = int64(x)
		}
		return out
	}
	return nil
}

// Object names are stored as "Name\x00\x01Class". SplitObjectName returns
// both halves.
func SplitObjectName(raw string) (name, class string) {
	if i := strings.Index(raw, "\x00\x01"); i >= 0 {
		return raw[:i], raw[i+2:]
	}
	return raw, ""
}

// Properties70 lookup: returns the P node whose first property equals
// name, or nil.
func (n *Node) FindP(name string) *Node {
	props := n.GetNode("Properties70")
	if props == nil {
		return nil
	}
	for _, p := range props.GetNodes("P") {
		if p.PropString(0) == name {
			return p
		}
	}
	return nil
}

// PVec3 reads the trailing three floats of a P record ("Lcl Translation"
// and friends keep their payload in properties 4..6).
func (p *Node) PVec3() [3]float64 {
	var out [3]float64
	base := len(p.Properties) - 3
	if base < 0 {
		return out
	}
	for i := 0; i < 3; i++ {
		out[i] = p.PropFloat(base + i)
	}
	return out
}
