package fbx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"testing"
)

// test-side binary fbx writer, narrow (pre-7500) record layout

type testNode struct {
	name  string
	props []interface{}
	nodes []*testNode
}

func (n *testNode) write(buf *bytes.Buffer, base int) {
	start := buf.Len()
	// placeholder header
	buf.Write(make([]byte, 12))
	buf.WriteByte(byte(len(n.name)))
	buf.WriteString(n.name)

	propStart := buf.Len()
	for _, p := range n.props {
		writeTestProperty(buf, p)
	}
	propLen := buf.Len() - propStart

	if len(n.nodes) > 0 {
		for _, child := range n.nodes {
			child.write(buf, base)
		}
		buf.Write(make([]byte, 13)) // sentinel
	}

	end := buf.Len()
	b := buf.Bytes()
	binary.LittleEndian.PutUint32(b[start:], uint32(base+end))
	binary.LittleEndian.PutUint32(b[start+4:], uint32(len(n.props)))
	binary.LittleEndian.PutUint32(b[start+8:], uint32(propLen))
}

func writeTestProperty(buf *bytes.Buffer, p interface{}) {
	switch v := p.(type) {
	case int32:
		buf.WriteByte('I')
		binary.Write(buf, binary.LittleEndian, v)
	case int64:
		buf.WriteByte('L')
		binary.Write(buf, binary.LittleEndian, v)
	case float64:
		buf.WriteByte('D')
		binary.Write(buf, binary.LittleEndian, v)
	case string:
		buf.WriteByte('S')
		binary.Write(buf, binary.LittleEndian, uint32(len(v)))
		buf.WriteString(v)
	case []float64:
		buf.WriteByte('d')
		var packed bytes.Buffer
		zw := zlib.NewWriter(&packed)
		binary.Write(zw, binary.LittleEndian, v)
		zw.Close()
		binary.Write(buf, binary.LittleEndian, uint32(len(v)))
		binary.Write(buf, binary.LittleEndian, uint32(1))
		binary.Write(buf, binary.LittleEndian, uint32(packed.Len()))
		buf.Write(packed.Bytes())
	case []int32:
		buf.WriteByte('i')
		binary.Write(buf, binary.LittleEndian, uint32(len(v)))
		binary.Write(buf, binary.LittleEndian, uint32(0))
		binary.Write(buf, binary.LittleEndian, uint32(len(v)*4))
		binary.Write(buf, binary.LittleEndian, v)
	default:
		panic("unsupported test property")
	}
}

func buildTestFile(t *testing.T, roots ...*testNode) []byte {
	t.Helper()
	var out bytes.Buffer
	out.Write(headerMagic)
	binary.Write(&out, binary.LittleEndian, uint32(7400))
	for _, n := range roots {
		var nb bytes.Buffer
		n.write(&nb, out.Len())
		out.Write(nb.Bytes())
	}
	out.Write(make([]byte, 13)) // top-level sentinel
	return out.Bytes()
}

func TestParseNodeTree(t *testing.T) {
	data := buildTestFile(t,
		&testNode{
			name:  "Objects",
			props: nil,
			nodes: []*testNode{
				{
					name:  "Model",
					props: []interface{}{int64(42), "Hips\x00\x01Model", "LimbNode"},
					nodes: []*testNode{
						{name: "Version", props: []interface{}{int32(232)}},
					},
				},
			},
		},
		&testNode{
			name: "Connections",
			nodes: []*testNode{
				{name: "C", props: []interface{}{"OO", int64(42), int64(0)}},
			},
		},
	)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Version != 7400 {
		t.Errorf("version = %d", f.Version)
	}

	objects := f.Root.GetNode("Objects")
	if objects == nil {
		t.Fatalf("no Objects node")
	}
	model := objects.GetNode("Model")
	if model == nil {
		t.Fatalf("no Model node")
	}
	if model.PropInt64(0) != 42 {
		t.Errorf("model id = %d", model.PropInt64(0))
	}
	name, class := SplitObjectName(model.PropString(1))
	if name != "Hips" || class != "Model" {
		t.Errorf("SplitObjectName = %q, %q", name, class)
	}
	if model.PropString(2) != "LimbNode" {
		t.Errorf("class prop = %q", model.PropString(2))
	}
	if v := model.GetNode("Version"); v == nil || v.PropInt64(0) != 232 {
		t.Errorf("nested Version node missing or wrong")
	}
}

func TestParseCompressedArray(t *testing.T) {
	vertices := []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}
	data := buildTestFile(t,
		&testNode{
			name: "Objects",
			nodes: []*testNode{
				{
					name:  "Geometry",
					props: []interface{}{int64(7), "plane\x00\x01Geometry", "Mesh"},
					nodes: []*testNode{
						{name: "Vertices", props: []interface{}{vertices}},
						{name: "PolygonVertexIndex", props: []interface{}{[]int32{0, 1, -3}}},
					},
				},
			},
		},
	)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	geom := f.Root.GetNode("Objects").GetNode("Geometry")
	got := geom.GetNode("Vertices").PropFloatSlice(0)
	if len(got) != len(vertices) {
		t.Fatalf("vertices len = %d", len(got))
	}
	for i := range got {
		if math.Abs(got[i]-vertices[i]) > 1e-9 {
			t.Errorf("vertex[%d] = %v, expected %v", i, got[i], vertices[i])
		}
	}
	idx := geom.GetNode("PolygonVertexIndex").PropIntSlice(0)
	if len(idx) != 3 || idx[2] != -3 {
		t.Errorf("indexes = %v", idx)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not an fbx file at all, sorry")); err == nil {
		t.Errorf("expected error for bad magic")
	}
	if _, err := Parse(nil); err == nil {
		t.Errorf("expected error for empty input")
	}
}
