// Package mesh defines the vertex format fed to the pipeline and produces
// indexed triangle lists from OBJ files or built-in shapes.
package mesh

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func getVertexBindingDescription() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// VertexLayout describes Vertex to the pipeline.
func VertexLayout() pipeline.VertexLayout {
	return pipeline.VertexLayout{
		Bindings:   getVertexBindingDescription(),
		Attributes: getVertexAttributeDescriptions(),
	}
}

func Triangle() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{0, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{0.5, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func Quad() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

type vertexKey struct {
	position int
	uv       int
}

// LoadOBJ decodes an OBJ model. Polygons are split into triangle fans and
// corners that share both position and texture coordinate share a vertex.
// The V coordinate is flipped to match the image origin. mtl may be nil.
func LoadOBJ(objReader, mtl io.Reader) (*Mesh, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objReader, mtl)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	m := &Mesh{}
	uniqueVertices := make(map[vertexKey]uint32)

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// We need to triangularize faces
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					err = m.addVertex(decoder, uniqueVertices, face, corner)
					if err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if len(m.Indices) == 0 {
		return nil, errors.New("obj contains no faces")
	}
	return m, nil
}

func (m *Mesh) addVertex(decoder *obj.Decoder, uniqueVertices map[vertexKey]uint32, face obj.Face, faceIndex int) error {
	vertInd := face.Vertices[faceIndex]
	if vertInd < 0 || vertInd*3+2 >= len(decoder.Vertices) {
		return errors.Newf("face references vertex %d of %d", vertInd, len(decoder.Vertices)/3)
	}

	uvInd := -1
	if faceIndex < len(face.Uvs) && face.Uvs[faceIndex] >= 0 && face.Uvs[faceIndex]*2+1 < len(decoder.Uvs) {
		uvInd = face.Uvs[faceIndex]
	}

	key := vertexKey{position: vertInd, uv: uvInd}
	index, vertexExists := uniqueVertices[key]

	if !vertexExists {
		vert := Vertex{Position: mgl32.Vec3{
			decoder.Vertices[vertInd*3],
			decoder.Vertices[vertInd*3+1],
			decoder.Vertices[vertInd*3+2],
		}, Color: mgl32.Vec3{1, 1, 1}}

		if uvInd >= 0 {
			vert.TexCoord = mgl32.Vec2{
				decoder.Uvs[uvInd*2],
				1.0 - decoder.Uvs[uvInd*2+1],
			}
		}

		index = uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, vert)
		uniqueVertices[key] = index
	}

	m.Indices = append(m.Indices, index)
	return nil
}

// IndexType is the type of the values IndexBytes produces.
func (m *Mesh) IndexType() core1_0.IndexType {
	return core1_0.IndexTypeUInt32
}

// VertexBytes lays the vertices out the way VertexLayout describes them.
func (m *Mesh) VertexBytes() ([]byte, error) {
	return encode(m.Vertices)
}

func (m *Mesh) IndexBytes() ([]byte, error) {
	return encode(m.Indices)
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, errors.Wrap(err, "encode mesh data")
	}
	return buf.Bytes(), nil
}
