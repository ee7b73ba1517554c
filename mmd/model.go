package mmd

import "fmt"

// Format identifies the model file format a Model was decoded from.
type Format int

const (
	FormatPMX Format = iota
	FormatPMD
)

func (f Format) String() string {
	if f == FormatPMD {
		return "pmd"
	}
	return "pmx"
}

// Model is the format independent result of a model load.
type Model struct {
	Format    Format
	Name      string
	NameEn    string
	Comment   string
	CommentEn string

	Vertices    []*Vertex
	Indices     []int // triangle list
	Textures    []string
	Materials   []*Material
	Bones       []*Bone
	Morphs      []*Morph
	RigidBodies []*RigidBody
	Joints      []*Joint
}

type Vertex struct {
	Position  Vector3
	Normal    Vector3
	UV        Vector2
	ExtUVs    []Vector4
	EdgeDraw  bool
	EdgeScale float32
	Bones     []int
	Weights   []float32 // same length as Bones, sums to 1
}

type ToonKind int

const (
	ToonNone ToonKind = iota
	ToonPath
	ToonShared
)

// ToonTexture is either a resolved file path or a shared toon id.
type ToonTexture struct {
	Kind     ToonKind
	Path     string
	SharedID int
}

// SharedFileName returns the conventional file of a shared toon, toon/toon01.bmp for id 0.
func (t ToonTexture) SharedFileName() string {
	if t.Kind != ToonShared {
		return ""
	}
	return fmt.Sprintf("toon/toon%02d.bmp", t.SharedID+1)
}

// File returns the path to load for the toon, or "" when there is none.
func (t ToonTexture) File() string {
	switch t.Kind {
	case ToonPath:
		return t.Path
	case ToonShared:
		return t.SharedFileName()
	}
	return ""
}

type Material struct {
	Name        string
	NameEn      string
	Diffuse     Color3
	Alpha       float32
	Specular    Color3
	Specularity float32
	Ambient     Color3
	Flags       MaterialFlags
	EdgeColor   Color4
	EdgeSize    float32

	// Texture file names, "" when absent.
	Texture    string
	MulSphere  string
	AddSphere  string
	SubTexture string
	Toon       ToonTexture

	Memo       string
	IndexCount int
}

type Bone struct {
	ID       int
	Name     string
	NameEn   string
	Position Vector3
	Parent   int // -1 for root
	Flags    BoneFlags
	Rank     int

	// TailOffset is set exactly when BoneFlagTailIndex is clear, and TailIndex
	// is then -1. A tail index of -1 with the flag set means no tail.
	TailIndex  int
	TailOffset *Vector3

	Inherit        *BoneInherit
	FixedAxis      *Vector3
	LocalAxis      *BoneLocalAxis
	ExternalParent *int
	IK             *BoneIK
}

// IndexRanges returns the [start, end) run of Indices owned by each material.
func (m *Model) IndexRanges() [][2]int {
	r := make([][2]int, len(m.Materials))
	start := 0
	for i, mat := range m.Materials {
		r[i] = [2]int{start, start + mat.IndexCount}
		start += mat.IndexCount
	}
	return r
}

// BoneIndex returns the index of the named bone, or -1.
func (m *Model) BoneIndex(name string) int {
	for i, b := range m.Bones {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// MorphIndex returns the index of the named morph, or -1.
func (m *Model) MorphIndex(name string) int {
	for i, mo := range m.Morphs {
		if mo.Name == name {
			return i
		}
	}
	return -1
}
