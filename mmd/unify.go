package mmd

import (
	"regexp"
	"strings"
)

var sharedToonPattern = regexp.MustCompile(`^toon(0[1-9]|10)\.bmp$`)

const pmdIKAngleScale = 4

// normalizePMDToon moves the standard toon files into the shared toon folder.
func normalizePMDToon(name string) string {
	if sharedToonPattern.MatchString(name) {
		return "toon/" + name
	}
	return name
}

func normalizeWeights(w []float32) []float32 {
	var sum float32
	for _, v := range w {
		sum += v
	}
	if sum <= 0 || sum == 1 {
		return w
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// FromPMD converts a decoded PMD document into a Model.
func FromPMD(doc *PMDDocument) *Model {
	m := &Model{
		Format:  FormatPMD,
		Name:    doc.Header.Name,
		Comment: doc.Header.Comment,
		Indices: append([]int(nil), doc.Indices...),
	}

	m.Vertices = make([]*Vertex, len(doc.Vertices))
	for i, v := range doc.Vertices {
		w := float32(v.Weight) / 100
		m.Vertices[i] = &Vertex{
			Position:  v.Position,
			Normal:    v.Normal,
			UV:        v.UV,
			EdgeDraw:  v.EdgeOff == 0,
			EdgeScale: 1,
			Bones:     []int{v.Bones[0], v.Bones[1]},
			Weights:   []float32{w, 1 - w},
		}
	}

	seen := map[string]bool{}
	addTexture := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			m.Textures = append(m.Textures, name)
		}
	}

	m.Materials = make([]*Material, len(doc.Materials))
	for i, src := range doc.Materials {
		mat := &Material{
			Diffuse:     src.Diffuse,
			Alpha:       src.Alpha,
			Specular:    src.Specular,
			Specularity: src.Specularity,
			Ambient:     src.Ambient,
			Texture:     src.Texture,
			IndexCount:  src.IndexCount,
		}
		if src.EdgeFlag == 1 {
			mat.Flags |= MaterialFlagDrawBoth
		}
		if src.Sphere != "" {
			if isAddSphere(src.Sphere) {
				mat.AddSphere = src.Sphere
			} else {
				mat.MulSphere = src.Sphere
			}
		}
		if id := int(src.ToonID); id >= 1 && id <= len(doc.Toons) {
			if name := doc.Toons[id-1]; name != "" {
				mat.Toon = ToonTexture{Kind: ToonPath, Path: normalizePMDToon(name)}
			}
		}
		addTexture(mat.Texture)
		addTexture(mat.MulSphere)
		addTexture(mat.AddSphere)
		m.Materials[i] = mat
	}

	m.Bones = make([]*Bone, len(doc.Bones))
	for i, src := range doc.Bones {
		b := &Bone{
			ID:        i,
			Name:      src.Name,
			Position:  src.Position,
			Parent:    src.Parent,
			Flags:     src.Flags,
			TailIndex: src.Tail,
		}
		if b.TailIndex < 0 {
			b.TailIndex = -1
			b.TailOffset = &Vector3{}
		} else {
			b.Flags |= BoneFlagTailIndex
		}
		m.Bones[i] = b
	}
	for _, ik := range doc.IKs {
		if ik.Bone < 0 || ik.Bone >= len(m.Bones) {
			continue
		}
		links := make([]IKLink, len(ik.Links))
		for i, l := range ik.Links {
			links[i] = IKLink{Bone: l}
		}
		m.Bones[ik.Bone].IK = &BoneIK{
			Target:     ik.Target,
			Loop:       ik.Iterations,
			LimitAngle: ik.ControlWeight * pmdIKAngleScale,
			Links:      links,
		}
	}

	m.Morphs = pmdSkinMorphs(doc.Skins)
	m.RigidBodies = doc.RigidBodies
	m.Joints = doc.Joints
	return m
}

func isAddSphere(name string) bool {
	return strings.Contains(strings.ToLower(name), ".spa")
}

// pmdSkinMorphs resolves skins that index into the base skin to absolute vertex morphs.
func pmdSkinMorphs(skins []*PMDSkin) []*Morph {
	var base *PMDSkin
	if len(skins) > 0 && skins[0].Kind == 0 {
		base = skins[0]
		skins = skins[1:]
	}
	morphs := make([]*Morph, 0, len(skins))
	for _, s := range skins {
		mo := &Morph{Name: s.Name, Panel: s.Kind, Kind: MorphKindVertex}
		for _, v := range s.Vertices {
			idx := v.Index
			if base != nil {
				if idx < 0 || idx >= len(base.Vertices) {
					continue
				}
				idx = base.Vertices[idx].Index
			}
			mo.Vertex = append(mo.Vertex, &MorphVertex{Target: idx, Offset: v.Offset})
		}
		morphs = append(morphs, mo)
	}
	return morphs
}

func textureAt(textures []string, i int) string {
	if i < 0 || i >= len(textures) {
		return ""
	}
	return textures[i]
}

// FromPMX converts a decoded PMX document into a Model.
func FromPMX(doc *PMXDocument) *Model {
	m := &Model{
		Format:      FormatPMX,
		Name:        doc.Name,
		NameEn:      doc.NameEn,
		Comment:     doc.Comment,
		CommentEn:   doc.CommentEn,
		Indices:     append([]int(nil), doc.Indices...),
		Textures:    append([]string(nil), doc.Textures...),
		Morphs:      doc.Morphs,
		RigidBodies: doc.RigidBodies,
		Joints:      doc.Joints,
	}

	m.Vertices = make([]*Vertex, len(doc.Vertices))
	for i, v := range doc.Vertices {
		weights := append([]float32(nil), v.Weights...)
		if v.Blend == BlendBDEF4 {
			weights = normalizeWeights(weights)
		}
		m.Vertices[i] = &Vertex{
			Position:  v.Position,
			Normal:    v.Normal,
			UV:        v.UV,
			ExtUVs:    v.ExtUVs,
			EdgeDraw:  true,
			EdgeScale: v.EdgeScale,
			Bones:     append([]int(nil), v.Bones...),
			Weights:   weights,
		}
	}

	m.Materials = make([]*Material, len(doc.Materials))
	for i, src := range doc.Materials {
		mat := &Material{
			Name:        src.Name,
			NameEn:      src.NameEn,
			Diffuse:     src.Diffuse,
			Alpha:       src.Alpha,
			Specular:    src.Specular,
			Specularity: src.Specularity,
			Ambient:     src.Ambient,
			Flags:       src.Flags,
			EdgeColor:   src.EdgeColor,
			EdgeSize:    src.EdgeSize,
			Texture:     textureAt(doc.Textures, src.Texture),
			Memo:        src.Memo,
			IndexCount:  src.IndexCount,
		}
		sphere := textureAt(doc.Textures, src.Sphere)
		switch src.SphereMode {
		case SphereMultiply:
			mat.MulSphere = sphere
		case SphereAdd:
			mat.AddSphere = sphere
		case SphereSubTexture:
			mat.SubTexture = sphere
		}
		if src.ToonShared {
			mat.Toon = ToonTexture{Kind: ToonShared, SharedID: src.Toon}
		} else if name := textureAt(doc.Textures, src.Toon); name != "" {
			mat.Toon = ToonTexture{Kind: ToonPath, Path: name}
		}
		m.Materials[i] = mat
	}

	m.Bones = make([]*Bone, len(doc.Bones))
	for i, src := range doc.Bones {
		m.Bones[i] = &Bone{
			ID:             i,
			Name:           src.Name,
			NameEn:         src.NameEn,
			Position:       src.Position,
			Parent:         src.Parent,
			Flags:          src.Flags,
			Rank:           src.Rank,
			TailIndex:      src.TailIndex,
			TailOffset:     src.TailOffset,
			Inherit:        src.Inherit,
			FixedAxis:      src.FixedAxis,
			LocalAxis:      src.LocalAxis,
			ExternalParent: src.ExternalParent,
			IK:             src.IK,
		}
	}
	return m
}
