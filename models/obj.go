package models

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/xlab/linmath"
)

// LoadOBJ reads a Wavefront OBJ model. Faces with more than three corners are
// triangulated as fans. Positions are multiplied by scale and the V texture
// coordinate is flipped for Vulkan. Faces without normals get the normal of
// their plane.
func LoadOBJ(r io.Reader, scale float32) (Mesh, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())

	model, err := decoder.Decode(r)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "decoding OBJ")
	}

	b := newMeshBuilder()
	for _, modelObj := range model.Objects {
		for _, mesh := range modelObj.Meshes {
			for _, face := range mesh.Faces {
				refs := face.References
				if len(refs) < 3 {
					continue
				}

				corners := make([]Vertex, len(refs))
				hasNormals := true
				for i, ref := range refs {
					vertex := model.GetVertexFromReference(ref)
					corners[i] = Vertex{
						Pos: linmath.Vec3{
							float32(vertex.X) * scale,
							float32(vertex.Y) * scale,
							float32(vertex.Z) * scale,
						},
						Color: linmath.Vec3{1, 1, 1},
					}

					if ref.HasTexCoord() {
						texCoord := model.GetTexCoordFromReference(ref)
						corners[i].TexCoord = linmath.Vec2{
							float32(texCoord.U),
							1 - float32(texCoord.V),
						}
					}

					if ref.HasNormal() {
						normal := model.GetNormalFromReference(ref)
						corners[i].Normal = linmath.Vec3{
							float32(normal.X),
							float32(normal.Y),
							float32(normal.Z),
						}
					} else {
						hasNormals = false
					}
				}

				if !hasNormals {
					n := faceNormal(corners[0].Pos, corners[1].Pos, corners[2].Pos)
					for i := range corners {
						corners[i].Normal = n
					}
				}

				for i := 1; i+1 < len(corners); i++ {
					b.add(corners[0])
					b.add(corners[i])
					b.add(corners[i+1])
				}
			}
		}
	}

	if b.mesh.Empty() {
		return Mesh{}, errors.New("OBJ model has no faces")
	}

	return b.mesh, nil
}

// faceNormal returns the unit normal of a counter clockwise triangle.
func faceNormal(a, b, c linmath.Vec3) linmath.Vec3 {
	pa, pb, pc := mgl32.Vec3(a), mgl32.Vec3(b), mgl32.Vec3(c)

	n := pb.Sub(pa).Cross(pc.Sub(pa))
	if n.Len() == 0 {
		return linmath.Vec3{0, 1, 0}
	}
	return linmath.Vec3(n.Normalize())
}
