// Package mmd decodes PMD/PMX models and VMD motions.
package mmd

type Vector2 struct {
	X float32
	Y float32
}

type Vector3 struct {
	X float32
	Y float32
	Z float32
}

type Vector4 struct {
	X float32
	Y float32
	Z float32
	W float32
}

// Quaternion is stored in x, y, z, w order as in the files.
type Quaternion struct {
	X float32
	Y float32
	Z float32
	W float32
}

type Color3 struct {
	R float32
	G float32
	B float32
}

type Color4 struct {
	R float32
	G float32
	B float32
	A float32
}

// BoneFlags is the PMX bone flag register. PMD bone kinds are mapped into it.
type BoneFlags uint16

const (
	BoneFlagTailIndex          BoneFlags = 0x0001
	BoneFlagRotatable          BoneFlags = 0x0002
	BoneFlagTranslatable       BoneFlags = 0x0004
	BoneFlagVisible            BoneFlags = 0x0008
	BoneFlagEnabled            BoneFlags = 0x0010
	BoneFlagIK                 BoneFlags = 0x0020
	BoneFlagInheritRotation    BoneFlags = 0x0100
	BoneFlagInheritTranslation BoneFlags = 0x0200
	BoneFlagFixedAxis          BoneFlags = 0x0400
	BoneFlagLocalAxis          BoneFlags = 0x0800
	BoneFlagPhysicsAfterDeform BoneFlags = 0x1000
	BoneFlagExternalParent     BoneFlags = 0x2000

	BoneFlagAll = BoneFlagTailIndex | BoneFlagRotatable | BoneFlagTranslatable | BoneFlagVisible |
		BoneFlagEnabled | BoneFlagIK | BoneFlagInheritRotation | BoneFlagInheritTranslation |
		BoneFlagFixedAxis | BoneFlagLocalAxis | BoneFlagPhysicsAfterDeform | BoneFlagExternalParent
)

func (f BoneFlags) Has(flag BoneFlags) bool { return f&flag != 0 }

// TailIsIndex reports whether the tail is stored as a bone index instead of an offset.
func (f BoneFlags) TailIsIndex() bool { return f.Has(BoneFlagTailIndex) }
func (f BoneFlags) IsIK() bool        { return f.Has(BoneFlagIK) }

// HasInherit reports whether an inherit (additive) parent follows in the record.
func (f BoneFlags) HasInherit() bool {
	return f.Has(BoneFlagInheritRotation) || f.Has(BoneFlagInheritTranslation)
}
func (f BoneFlags) HasFixedAxis() bool      { return f.Has(BoneFlagFixedAxis) }
func (f BoneFlags) HasLocalAxis() bool      { return f.Has(BoneFlagLocalAxis) }
func (f BoneFlags) HasExternalParent() bool { return f.Has(BoneFlagExternalParent) }

type MaterialFlags uint8

const (
	MaterialFlagDrawBoth      MaterialFlags = 0x01
	MaterialFlagGroundShadow  MaterialFlags = 0x02
	MaterialFlagSelfShadowMap MaterialFlags = 0x04
	MaterialFlagSelfShadow    MaterialFlags = 0x08
	MaterialFlagDrawEdge      MaterialFlags = 0x10
	MaterialFlagVertexColor   MaterialFlags = 0x20
	MaterialFlagDrawPoint     MaterialFlags = 0x40
	MaterialFlagDrawLine      MaterialFlags = 0x80
)

func (f MaterialFlags) Has(flag MaterialFlags) bool { return f&flag != 0 }
func (f MaterialFlags) DoubleSided() bool           { return f.Has(MaterialFlagDrawBoth) }

type BoneInherit struct {
	Parent    int
	Influence float32
}

type BoneLocalAxis struct {
	X Vector3
	Z Vector3
}

type IKAngleLimit struct {
	Min Vector3
	Max Vector3
}

type IKLink struct {
	Bone  int
	Limit *IKAngleLimit
}

type BoneIK struct {
	Target     int
	Loop       int
	LimitAngle float32 // radians per iteration
	Links      []IKLink
}

type MorphKind byte

const (
	MorphKindGroup MorphKind = iota
	MorphKindVertex
	MorphKindBone
	MorphKindUV
	MorphKindExtUV1
	MorphKindExtUV2
	MorphKindExtUV3
	MorphKindExtUV4
	MorphKindMaterial
)

func (k MorphKind) String() string {
	switch k {
	case MorphKindGroup:
		return "group"
	case MorphKindVertex:
		return "vertex"
	case MorphKindBone:
		return "bone"
	case MorphKindUV:
		return "uv"
	case MorphKindExtUV1, MorphKindExtUV2, MorphKindExtUV3, MorphKindExtUV4:
		return "extuv"
	case MorphKindMaterial:
		return "material"
	}
	return "unknown"
}

// IsUV reports whether the morph carries UV offsets (base or additional channel).
func (k MorphKind) IsUV() bool { return k >= MorphKindUV && k <= MorphKindExtUV4 }

type MorphGroup struct {
	Target int
	Weight float32
}

type MorphVertex struct {
	Target int
	Offset Vector3
}

type MorphUV struct {
	Target int
	Offset Vector4
}

type MorphBone struct {
	Target      int
	Translation Vector3
	Rotation    Quaternion
}

type MaterialMorphMode byte

const (
	MaterialMorphMultiply MaterialMorphMode = 0
	MaterialMorphAdd      MaterialMorphMode = 1
)

// Target -1 addresses all materials.
type MorphMaterial struct {
	Target int
	Mode   MaterialMorphMode

	Diffuse         Color3
	Alpha           float32
	Specular        Color3
	Specularity     float32
	Ambient         Color3
	EdgeColor       Color4
	EdgeSize        float32
	TextureTint     Vector4
	EnvironmentTint Vector4
	ToonTint        Vector4
}

// Morph holds one offset array; only the slice matching Kind is populated.
type Morph struct {
	Name   string
	NameEn string
	Panel  byte
	Kind   MorphKind

	Group    []*MorphGroup
	Vertex   []*MorphVertex
	Bone     []*MorphBone
	UV       []*MorphUV
	Material []*MorphMaterial
}

// Len returns the number of offsets of the populated kind.
func (m *Morph) Len() int {
	switch {
	case m.Kind == MorphKindGroup:
		return len(m.Group)
	case m.Kind == MorphKindVertex:
		return len(m.Vertex)
	case m.Kind == MorphKindBone:
		return len(m.Bone)
	case m.Kind.IsUV():
		return len(m.UV)
	case m.Kind == MorphKindMaterial:
		return len(m.Material)
	}
	return 0
}

type RigidShape byte

const (
	RigidShapeSphere RigidShape = iota
	RigidShapeBox
	RigidShapeCapsule
)

type RigidMode byte

const (
	RigidModeStatic RigidMode = iota
	RigidModeDynamic
	RigidModeDynamicBone
)

// RigidBody is passive physics data. It is never simulated here.
type RigidBody struct {
	Name   string
	NameEn string

	Bone             int
	Group            byte
	NonCollisionMask uint16
	Shape            RigidShape
	Size             Vector3
	Position         Vector3
	Rotation         Vector3

	Mass           float32
	LinearDamping  float32
	AngularDamping float32
	Restitution    float32
	Friction       float32
	Mode           RigidMode
}

type Joint struct {
	Name   string
	NameEn string
	Type   byte

	RigidA int
	RigidB int

	Position     Vector3
	Rotation     Vector3
	MoveMin      Vector3
	MoveMax      Vector3
	RotateMin    Vector3
	RotateMax    Vector3
	SpringMove   Vector3
	SpringRotate Vector3
}
