// Package gltfutils carries the shared glb plumbing: document setup,
// binary encoding and the accessor writers the modeler package has no
// helpers for (mat4 bind matrices, animation samplers).
package gltfutils

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

func NewDocument() *gltf.Document {
	return gltf.NewDocument()
}

// ExportBinary writes the document as a single glb blob.
func ExportBinary(w io.Writer, doc *gltf.Document) error {
	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = true
	return encoder.Encode(doc)
}

// writeBlob appends raw bytes to buffer 0 (padded to 4) and returns the
// index of a buffer view covering them.
func writeBlob(doc *gltf.Document, data []byte) uint32 {
	if len(doc.Buffers) == 0 {
		doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	}
	buffer := doc.Buffers[0]
	for len(buffer.Data)%4 != 0 {
		buffer.Data = append(buffer.Data, 0)
	}
	offset := uint32(len(buffer.Data))
	buffer.Data = append(buffer.Data, data...)
	buffer.ByteLength = uint32(len(buffer.Data))

	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: uint32(len(data)),
	})
	return uint32(len(doc.BufferViews) - 1)
}

func marshalLE(data interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteTimes writes an animation input accessor. Min and max are required
// by the format for sampler inputs.
func WriteTimes(doc *gltf.Document, times []float32) uint32 {
	min, max := times[0], times[0]
	for _, t := range times {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	bv := writeBlob(doc, marshalLE(times))
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(bv),
		ComponentType: gltf.ComponentFloat,
		Count:         uint32(len(times)),
		Type:          gltf.AccessorScalar,
		Min:           []float32{min},
		Max:           []float32{max},
	})
	return uint32(len(doc.Accessors) - 1)
}

func WriteVec3s(doc *gltf.Document, data [][3]float32) uint32 {
	bv := writeBlob(doc, marshalLE(data))
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(bv),
		ComponentType: gltf.ComponentFloat,
		Count:         uint32(len(data)),
		Type:          gltf.AccessorVec3,
	})
	return uint32(len(doc.Accessors) - 1)
}

func WriteQuats(doc *gltf.Document, data [][4]float32) uint32 {
	bv := writeBlob(doc, marshalLE(data))
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(bv),
		ComponentType: gltf.ComponentFloat,
		Count:         uint32(len(data)),
		Type:          gltf.AccessorVec4,
	})
	return uint32(len(doc.Accessors) - 1)
}

// WriteMat4s writes inverse bind matrices. mgl32 matrices are already
// column-major as the format wants them.
func WriteMat4s(doc *gltf.Document, mats []mgl32.Mat4) uint32 {
	bv := writeBlob(doc, marshalLE(mats))
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(bv),
		ComponentType: gltf.ComponentFloat,
		Count:         uint32(len(mats)),
		Type:          gltf.AccessorMat4,
	})
	return uint32(len(doc.Accessors) - 1)
}
