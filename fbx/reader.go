package fbx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"io/ioutil"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/maxportland/metalman/utils"
)

var headerMagic = []byte("Kaydara FBX Binary  \x00\x1a\x00")

// File is a parsed binary FBX document: the format version and the
// top-level records (FBXHeaderExtension, Objects, Connections, Takes...).
type File struct {
	Version uint32
	Root    Node
}

func ReadFile(path string) (*File, error) {
	fl, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open fbx %q", path)
	}
	defer fl.Close()
	return Read(fl)
}

func Read(r io.Reader) (*File, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read fbx stream")
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	if len(data) < len(headerMagic)+4 {
		return nil, errors.Errorf("File too small for fbx header (%v bytes)", len(data))
	}
	if !bytes.Equal(data[:len(headerMagic)], headerMagic) {
		return nil, errors.Errorf("Not a binary fbx file (magic %q)", utils.BytesToString(data[:20]))
	}

	f := &File{Version: u32(data, uint32(len(headerMagic)))}

	p := &parser{
		data: data,
		off:  uint64(len(headerMagic)) + 4,
		// 7500 widened the node record fields to 64 bit
		wide: f.Version >= 7500,
	}

	for {
		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		if node == nil {
			break
		}
		f.Root.Nodes = append(f.Root.Nodes, node)
	}

	return f, nil
}

func u32(d []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(d[off : off+4])
}

type parser struct {
	data []byte
	off  uint64
	wide bool
}

func (p *parser) remain() uint64 {
	return uint64(len(p.data)) - p.off
}

func (p *parser) u8() uint8 {
	v := p.data[p.off]
	p.off++
	return v
}

func (p *parser) u32() uint32 {
	v := binary.LittleEndian.Uint32(p.data[p.off : p.off+4])
	p.off += 4
	return v
}

func (p *parser) u64() uint64 {
	v := binary.LittleEndian.Uint64(p.data[p.off : p.off+8])
	p.off += 8
	return v
}

// node record header field: u32 before version 7500, u64 after
func (p *parser) offsetField() uint64 {
	if p.wide {
		return p.u64()
	}
	return uint64(p.u32())
}

func (p *parser) take(n uint64) ([]byte, error) {
	if p.remain() < n {
		return nil, errors.Errorf("Unexpected end of fbx data at 0x%x (+%d)", p.off, n)
	}
	b := p.data[p.off : p.off+n]
	p.off += n
	return b, nil
}

// readNode parses one node record. The all-zero sentinel record that
// terminates sibling lists parses as nil.
func (p *parser) readNode() (*Node, error) {
	sentinelLen := uint64(13)
	if p.wide {
		sentinelLen = 25
	}
	if p.remain() < sentinelLen {
		return nil, errors.Errorf("Truncated node record at 0x%x", p.off)
	}

	endOffset := p.offsetField()
	numProps := p.offsetField()
	propListLen := p.offsetField()
	nameLen := uint64(p.u8())

	if endOffset == 0 && numProps == 0 && propListLen == 0 && nameLen == 0 {
		return nil, nil
	}
	if endOffset > uint64(len(p.data)) {
		return nil, errors.Errorf("Node end offset 0x%x beyond data size 0x%x", endOffset, len(p.data))
	}

	nameRaw, err := p.take(nameLen)
	if err != nil {
		return nil, err
	}
	node := &Node{Name: string(nameRaw)}

	for i := uint64(0); i < numProps; i++ {
		prop, err := p.readProperty()
		if err != nil {
			return nil, errors.Wrapf(err, "Node %q property %d", node.Name, i)
		}
		node.Properties = append(node.Properties, prop)
	}

	// whatever space remains before endOffset holds child records plus
	// one sentinel
	for p.off < endOffset {
		child, err := p.readNode()
		if err != nil {
			return nil, errors.Wrapf(err, "Node %q children", node.Name)
		}
		if child == nil {
			break
		}
		node.Nodes = append(node.Nodes, child)
	}
	if p.off > endOffset {
		return nil, errors.Errorf("Node %q overran its end offset", node.Name)
	}
	p.off = endOffset

	return node, nil
}

func (p *parser) readProperty() (interface{}, error) {
	typeCode := p.u8()
	switch typeCode {
	case 'Y':
		b, err := p.take(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.LittleEndian.Uint16(b)), nil
	case 'C':
		b, err := p.take(1)
		if err != nil {
			return nil, err
		}
		return b[0]&1 == 1, nil
	case 'I':
		b, err := p.take(4)
		if err != nil {
			return nil, err
		}
		return int32(binary.LittleEndian.Uint32(b)), nil
	case 'F':
		b, err := p.take(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case 'D':
		b, err := p.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case 'L':
		b, err := p.take(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case 'S':
		n := p.u32()
		b, err := p.take(uint64(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case 'R':
		n := p.u32()
		b, err := p.take(uint64(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, b)
		return out, nil
	case 'f', 'd', 'l', 'i', 'b':
		return p.readArrayProperty(typeCode)
	}
	return nil, errors.Errorf("Unknown property typecode %q", typeCode)
}

func (p *parser) readArrayProperty(typeCode uint8) (interface{}, error) {
	arrayLen := p.u32()
	encoding := p.u32()
	compressedLen := p.u32()

	var elemSize uint32
	switch typeCode {
	case 'f', 'i':
		elemSize = 4
	case 'd', 'l':
		elemSize = 8
	case 'b':
		elemSize = 1
	}

	var raw []byte
	switch encoding {
	case 0:
		b, err := p.take(uint64(arrayLen) * uint64(elemSize))
		if err != nil {
			return nil, err
		}
		raw = b
	case 1:
		b, err := p.take(uint64(compressedLen))
		if err != nil {
			return nil, err
		}
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, errors.Wrapf(err, "Bad zlib stream in array property")
		}
		defer zr.Close()
		raw, err = ioutil.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to inflate array property")
		}
		if uint32(len(raw)) != arrayLen*elemSize {
			return nil, errors.Errorf("Inflated array size %d != expected %d", len(raw), arrayLen*elemSize)
		}
	default:
		return nil, errors.Errorf("Unknown array encoding %d", encoding)
	}

	br := bytes.NewReader(raw)
	switch typeCode {
	case 'f':
		out := make([]float32, arrayLen)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case 'd':
		out := make([]float64, arrayLen)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case 'i':
		out := make([]int32, arrayLen)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case 'l':
		out := make([]int64, arrayLen)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case 'b':
		out := make([]bool, arrayLen)
		for i, v := range raw {
			out[i] = v&1 == 1
		}
		return out, nil
	}
	panic("unreachable")
}
