package converter

import (
	"errors"
	"fmt"

	"github.com/binzume/mmdloader/mmd"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// DefaultScale converts MMD units to meters.
const DefaultScale = 0.08

var ErrIndexOutOfRange = errors.New("converter: vertex index out of range")

type ModelToGLTFOption struct {
	Scale      float32 // Default: 0.08
	ForceUnlit bool

	// TextureDir enables embedding of base textures. Toon and sphere textures
	// are only recorded by name.
	TextureDir             string
	TextureReCompress      bool
	TextureResolutionLimit int // 0: unlimited
	TextureScale           float32

	Logger *zap.Logger
}

// JointNodes maps bone names to the nodes created for them.
type JointNodes struct {
	Nodes map[string]uint32
	Scale float32
}

type modelToGltf struct {
	*ModelToGLTFOption
	*gltf.Document
	logger   *zap.Logger
	textures *textureCache
	joints   *JointNodes
}

func NewModelToGLTFConverter(options *ModelToGLTFOption) *modelToGltf {
	if options == nil {
		options = &ModelToGLTFOption{}
	}
	if options.Scale == 0 {
		options.Scale = DefaultScale
	}
	if options.TextureScale == 0 {
		options.TextureScale = 1.0
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &modelToGltf{
		ModelToGLTFOption: options,
		Document:          gltf.NewDocument(),
		logger:            logger,
		textures:          newTextureCache(options.TextureDir),
	}
}

// JointNodes returns the bone nodes of the last conversion.
func (m *modelToGltf) JointNodes() *JointNodes {
	return m.joints
}

// mirror turns MMD's left handed coordinates into glTF's right handed ones.
func (m *modelToGltf) mirror(v mmd.Vector3) [3]float32 {
	return [3]float32{v.X * m.Scale, v.Y * m.Scale, -v.Z * m.Scale}
}

func (m *modelToGltf) addMatrices(mat [][4][4]float32) uint32 {
	a := make([][4]float32, len(mat)*4)
	for i, m := range mat {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(m.Document, a)
	m.Accessors[acc].Type = gltf.AccessorMat4
	m.Accessors[acc].Count /= 4
	m.BufferViews[*m.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// rooted reports whether following parents from bone i ends at a root
// without leaving the bone list or looping.
func rooted(bones []*mmd.Bone, i int) bool {
	for n := 0; n <= len(bones); n++ {
		p := bones[i].Parent
		if p < 0 {
			return true
		}
		if p >= len(bones) {
			return false
		}
		i = p
	}
	return false
}

func (m *modelToGltf) addBoneNodes(bones []*mmd.Bone) []uint32 {
	nodes := make([]uint32, len(bones))
	m.joints = &JointNodes{Nodes: map[string]uint32{}, Scale: m.Scale}
	for i, b := range bones {
		nodes[i] = uint32(len(m.Nodes))
		if _, dup := m.joints.Nodes[b.Name]; !dup {
			m.joints.Nodes[b.Name] = nodes[i]
		}
		m.Nodes = append(m.Nodes, &gltf.Node{Name: b.Name, Translation: [3]float32{0, 0, 0}, Rotation: [4]float32{0, 0, 0, 1}})
	}

	for i, b := range bones {
		node := m.Nodes[nodes[i]]
		pos := m.mirror(b.Position)
		if b.Parent >= 0 && rooted(bones, i) {
			parent := m.mirror(bones[b.Parent].Position)
			node.Translation = [3]float32{pos[0] - parent[0], pos[1] - parent[1], pos[2] - parent[2]}
			parentNode := m.Nodes[nodes[b.Parent]]
			parentNode.Children = append(parentNode.Children, nodes[i])
		} else {
			if b.Parent >= 0 {
				m.logger.Warn("bone detached from broken parent chain", zap.String("bone", b.Name), zap.Int("parent", b.Parent))
			}
			node.Translation = pos
			m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, nodes[i])
		}
	}
	return nodes
}

func (m *modelToGltf) addSkin(bones []*mmd.Bone, joints []uint32) uint32 {
	invmats := make([][4][4]float32, len(joints))
	for i, b := range bones {
		p := m.mirror(b.Position)
		invmats[i] = [4][4]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
			{-p[0], -p[1], -p[2], 1},
		}
	}
	m.Skins = append(m.Skins, &gltf.Skin{
		Joints:              joints,
		InverseBindMatrices: gltf.Index(m.addMatrices(invmats)),
	})
	return uint32(len(m.Skins) - 1)
}

// getWeights keeps the four largest influences of each vertex.
func (m *modelToGltf) getWeights(vertices []*mmd.Vertex, boneCount int) ([][4]uint16, [][4]float32) {
	joints := make([][4]uint16, len(vertices))
	weights := make([][4]float32, len(vertices))
	for v, vert := range vertices {
		n := 0
		for i, b := range vert.Bones {
			w := vert.Weights[i]
			if b < 0 || b >= boneCount || w <= 0 {
				continue
			}
			jindex := n
			if n >= 4 {
				// Overwrite smallest weight.
				minWeight := w
				jindex = -1
				for j, cw := range weights[v] {
					if cw < minWeight {
						minWeight = cw
						jindex = j
					}
				}
				if jindex < 0 {
					continue
				}
			} else {
				n++
			}
			joints[v][jindex] = uint16(b)
			weights[v][jindex] = w
		}

		var sum float32
		for _, w := range weights[v] {
			sum += w
		}
		if sum == 0 {
			weights[v][0] = 1
		} else if sum != 1 {
			for i := range weights[v] {
				weights[v][i] /= sum
			}
		}
	}
	return joints, weights
}

func (m *modelToGltf) convertMaterial(mat *mmd.Material) *gltf.Material {
	var unlitMaterialExt = "KHR_materials_unlit"
	var rf float32 = 0.8
	var mf float32 = 0
	mm := &gltf.Material{
		Name: mat.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B, mat.Alpha},
			RoughnessFactor: &rf,
			MetallicFactor:  &mf,
		},
		DoubleSided: mat.Flags.DoubleSided(),
	}
	if mat.Alpha < 0.99 || (m.TextureDir != "" && m.textures.hasAlpha(mat.Texture)) {
		mm.AlphaMode = gltf.AlphaBlend
	}
	if m.ForceUnlit {
		mm.Extensions = map[string]interface{}{unlitMaterialExt: map[string]string{}}
	}

	extras := map[string]interface{}{}
	if mat.NameEn != "" {
		extras["nameEn"] = mat.NameEn
	}
	for k, v := range map[string]string{
		"texture":    mat.Texture,
		"mulSphere":  mat.MulSphere,
		"addSphere":  mat.AddSphere,
		"subTexture": mat.SubTexture,
		"toon":       mat.Toon.File(),
	} {
		if v != "" {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		mm.Extras = extras
	}

	if mat.Texture != "" && m.TextureDir != "" {
		if tex, err := m.addTexture(mat.Texture); err == nil {
			mm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{
				Index: *tex,
			}
		} else {
			m.logger.Warn("texture read error", zap.String("texture", mat.Texture), zap.Error(err))
		}
	}
	return mm
}

func (m *modelToGltf) convertMesh(model *mmd.Model) (*gltf.Mesh, error) {
	vertexes := make([][3]float32, len(model.Vertices))
	normals := make([][3]float32, len(model.Vertices))
	texcood0 := make([][2]float32, len(model.Vertices))
	for i, v := range model.Vertices {
		vertexes[i] = m.mirror(v.Position)
		normals[i] = [3]float32{v.Normal.X, v.Normal.Y, -v.Normal.Z}
		texcood0[i] = [2]float32{v.UV.X, v.UV.Y}
	}

	attributes := map[string]uint32{
		"POSITION":   modeler.WritePosition(m.Document, vertexes),
		"TEXCOORD_0": modeler.WriteTextureCoord(m.Document, texcood0),
	}
	if !m.ForceUnlit {
		attributes["NORMAL"] = modeler.WriteNormal(m.Document, normals)
	}
	if len(model.Bones) > 0 {
		joints0, weights0 := m.getWeights(model.Vertices, len(model.Bones))
		attributes["JOINTS_0"] = modeler.WriteJoints(m.Document, joints0)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(m.Document, weights0)
	}

	// morph
	var targets []map[string]uint32
	var targetNames []string
	for _, morph := range model.Morphs {
		if morph.Kind != mmd.MorphKindVertex {
			continue
		}
		mv := make([][3]float32, len(vertexes))
		for _, o := range morph.Vertex {
			if o.Target < 0 || o.Target >= len(mv) {
				continue
			}
			mv[o.Target] = m.mirror(o.Offset)
		}
		targets = append(targets, map[string]uint32{
			"POSITION": modeler.WritePosition(m.Document, mv),
		})
		targetNames = append(targetNames, morph.Name)
	}

	// make primitive for each materials
	var primitives []*gltf.Primitive
	for mat, r := range model.IndexRanges() {
		if r[1] > len(model.Indices) {
			m.logger.Warn("material index count exceeds index list", zap.Int("material", mat))
			r[1] = len(model.Indices)
		}
		if r[1]-r[0] < 3 {
			continue
		}
		// Mirroring Z also turns MMD's clockwise front faces counter-clockwise.
		indices := make([]uint32, 0, r[1]-r[0])
		for _, i := range model.Indices[r[0] : r[0]+(r[1]-r[0])/3*3] {
			if i < 0 || i >= len(vertexes) {
				return nil, fmt.Errorf("%w: material %d index %d", ErrIndexOutOfRange, mat, i)
			}
			indices = append(indices, uint32(i))
		}
		primitives = append(primitives, &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(m.Document, indices)),
			Attributes: attributes,
			Material:   gltf.Index(uint32(mat)),
			Targets:    targets,
		})
	}

	mesh := &gltf.Mesh{
		Name:       model.Name,
		Primitives: primitives,
	}
	if len(targetNames) > 0 {
		mesh.Weights = make([]float32, len(targetNames))
		mesh.Extras = map[string]interface{}{"targetNames": targetNames}
	}
	return mesh, nil
}

// Convert builds a glTF document holding the model's skeleton, a single skinned
// mesh with one primitive per material, and vertex morphs as morph targets.
func (m *modelToGltf) Convert(model *mmd.Model) (*gltf.Document, error) {
	joints := m.addBoneNodes(model.Bones)

	mesh, err := m.convertMesh(model)
	if err != nil {
		return nil, err
	}

	node := &gltf.Node{Name: model.Name}
	if len(mesh.Primitives) > 0 {
		node.Mesh = gltf.Index(uint32(len(m.Meshes)))
		m.Meshes = append(m.Meshes, mesh)
	}
	if len(joints) > 0 && node.Mesh != nil {
		node.Skin = gltf.Index(m.addSkin(model.Bones, joints))
	}
	m.Nodes = append(m.Nodes, node)
	m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, uint32(len(m.Nodes)-1))

	useUnlit := false
	for _, mat := range model.Materials {
		mm := m.convertMaterial(mat)
		if mm.Extensions["KHR_materials_unlit"] != nil {
			useUnlit = true
		}
		m.Materials = append(m.Materials, mm)
	}
	if useUnlit {
		m.ExtensionsUsed = append(m.ExtensionsUsed, "KHR_materials_unlit")
	}
	if len(m.Textures) > 0 {
		m.Samplers = []*gltf.Sampler{{}}
	}

	m.logger.Debug("gltf converted",
		zap.String("model", model.Name),
		zap.Int("nodes", len(m.Nodes)),
		zap.Int("primitives", len(mesh.Primitives)),
		zap.Int("morphTargets", len(mesh.Weights)),
		zap.Int("textures", len(m.Textures)))
	return m.Document, nil
}

// AddAnimation appends anim to the converted document.
func (m *modelToGltf) AddAnimation(anim *mmd.Animation) {
	if m.joints == nil {
		m.joints = &JointNodes{Nodes: map[string]uint32{}, Scale: m.Scale}
	}
	if a := AddAnimation(m.Document, anim, m.joints); a != nil {
		m.logger.Info("animation added",
			zap.String("name", anim.Name),
			zap.Int("channels", len(a.Channels)))
	} else {
		m.logger.Warn("animation has no channels for this model", zap.String("name", anim.Name))
	}
}
