package mmd

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// see also:
// https://gist.github.com/felixjones/f8a06bd48f9da9a4539f

const pmxMagic = "PMX "

// PMX header info slots.
const (
	AttrStringEncoding = iota
	AttrExtUV
	AttrVertIndexSz
	AttrTexIndexSz
	AttrMatIndexSz
	AttrBoneIndexSz
	AttrMorphIndexSz
	AttrRigidBodyIndexSz

	pmxHeaderInfoLen
)

const pmxMaxExtUV = 4

type PMXHeader struct {
	Magic   string
	Version float32
	Info    []byte
}

func (h *PMXHeader) ExtUVCount() int { return int(h.Info[AttrExtUV]) }

// UTF8 reports whether strings are UTF-8 rather than UTF-16LE.
func (h *PMXHeader) UTF8() bool { return h.Info[AttrStringEncoding] == 1 }

type BlendType byte

const (
	BlendBDEF1 BlendType = iota
	BlendBDEF2
	BlendBDEF4
	BlendSDEF
)

type SDEFParams struct {
	C  Vector3
	R0 Vector3
	R1 Vector3
}

type PMXVertex struct {
	Position  Vector3
	Normal    Vector3
	UV        Vector2
	ExtUVs    []Vector4
	Blend     BlendType
	Bones     []int
	Weights   []float32
	SDEF      *SDEFParams
	EdgeScale float32
}

type SphereMode byte

const (
	SphereNone SphereMode = iota
	SphereMultiply
	SphereAdd
	SphereSubTexture
)

type PMXMaterial struct {
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
	Texture     int
	Sphere      int
	SphereMode  SphereMode
	ToonShared  bool
	Toon        int // texture index, or shared toon id when ToonShared
	Memo        string
	IndexCount  int
}

// PMXBone keeps the flag-gated sub-fields as nil when absent.
type PMXBone struct {
	Name     string
	NameEn   string
	Position Vector3
	Parent   int
	Rank     int
	Flags    BoneFlags

	TailIndex      int
	TailOffset     *Vector3
	Inherit        *BoneInherit
	FixedAxis      *Vector3
	LocalAxis      *BoneLocalAxis
	ExternalParent *int
	IK             *BoneIK
}

type DisplayElement struct {
	Morph bool // false: bone index
	Index int
}

type DisplayFrame struct {
	Name     string
	NameEn   string
	Special  bool
	Elements []DisplayElement
}

type PMXDocument struct {
	Header    *PMXHeader
	Name      string
	NameEn    string
	Comment   string
	CommentEn string

	Vertices      []*PMXVertex
	Indices       []int
	Textures      []string
	Materials     []*PMXMaterial
	Bones         []*PMXBone
	Morphs        []*Morph
	DisplayFrames []*DisplayFrame
	RigidBodies   []*RigidBody
	Joints        []*Joint
}

// PMXParser is parser for .pmx model.
type PMXParser struct {
	*binaryReader
	logger *zap.Logger
	header *PMXHeader
}

// NewPMXParser returns new parser.
func NewPMXParser(r io.Reader) *PMXParser {
	return &PMXParser{binaryReader: newBinaryReader(r), logger: zap.NewNop()}
}

func (p *PMXParser) width(attr int) byte {
	return p.header.Info[attr]
}

func (p *PMXParser) readBoneIndex() int {
	return p.readIndex(p.width(AttrBoneIndexSz), indexSigned)
}

func (p *PMXParser) readTextureIndex() int {
	return p.readIndex(p.width(AttrTexIndexSz), indexSigned)
}

// kindTag reads a tag byte and fails when it is above max.
func (p *PMXParser) kindTag(field string, max byte) byte {
	off := p.off
	v := p.readUint8()
	if p.err == nil && v > max {
		p.fail(off, field, fmt.Errorf("%w: %d", ErrUnknownKindTag, v))
	}
	return v
}

func (p *PMXParser) readHeader() *PMXHeader {
	p.at("header", -1)
	var h PMXHeader
	magic := p.readBytes(len(pmxMagic), "magic")
	if p.err == nil && string(magic) != pmxMagic {
		p.fail(0, "magic", fmt.Errorf("%w: %q", ErrInvalidMagic, magic))
	}
	h.Magic = string(magic)
	h.Version = p.readFloat()

	off := p.off
	n := int(p.readUint8())
	if p.err == nil && n < pmxHeaderInfoLen {
		p.fail(off, "info length", fmt.Errorf("%w: %d", ErrInvalidLength, n))
	}
	h.Info = p.readBytes(n, "info")
	if p.err != nil {
		return nil
	}

	infoOff := off + 1
	switch h.Info[AttrStringEncoding] {
	case 0:
		p.setEncoding(encodingUTF16LE)
	case 1:
		p.setEncoding(encodingUTF8)
	default:
		p.fail(infoOff+AttrStringEncoding, "encoding", fmt.Errorf("%w: %d", ErrUnsupportedEncoding, h.Info[AttrStringEncoding]))
	}
	if h.Info[AttrExtUV] > pmxMaxExtUV {
		p.fail(infoOff+AttrExtUV, "extra uv count", fmt.Errorf("%w: %d", ErrUnknownKindTag, h.Info[AttrExtUV]))
	}
	for attr := AttrVertIndexSz; attr <= AttrRigidBodyIndexSz; attr++ {
		switch h.Info[attr] {
		case 1, 2, indexWidthSentinel4, 4:
		default:
			p.fail(infoOff+int64(attr), "index width", fmt.Errorf("%w: %d", ErrInvalidIndexWidth, h.Info[attr]))
		}
	}
	return &h
}

func (p *PMXParser) readVertex() *PMXVertex {
	var v PMXVertex
	p.field("position")
	v.Position = p.readVector3()
	p.field("normal")
	v.Normal = p.readVector3()
	p.field("uv")
	v.UV = p.readVector2()
	p.field("ext uv")
	if n := p.header.ExtUVCount(); n > 0 {
		v.ExtUVs = make([]Vector4, n)
		for i := range v.ExtUVs {
			v.ExtUVs[i] = p.readVector4()
		}
	}

	v.Blend = BlendType(p.kindTag("blend type", byte(BlendSDEF)))
	if p.err != nil {
		return &v
	}
	p.field("weights")
	switch v.Blend {
	case BlendBDEF1:
		v.Bones = []int{p.readBoneIndex()}
		v.Weights = []float32{1}
	case BlendBDEF2:
		v.Bones = []int{p.readBoneIndex(), p.readBoneIndex()}
		w := p.readFloat()
		v.Weights = []float32{w, 1 - w}
	case BlendBDEF4:
		v.Bones = []int{p.readBoneIndex(), p.readBoneIndex(), p.readBoneIndex(), p.readBoneIndex()}
		v.Weights = p.readFloats(4)
	case BlendSDEF:
		v.Bones = []int{p.readBoneIndex(), p.readBoneIndex()}
		w := p.readFloat()
		v.Weights = []float32{w, 1 - w}
		v.SDEF = &SDEFParams{C: p.readVector3(), R0: p.readVector3(), R1: p.readVector3()}
	}
	p.field("edge scale")
	v.EdgeScale = p.readFloat()
	return &v
}

func (p *PMXParser) readMaterial() *PMXMaterial {
	var m PMXMaterial
	p.field("name")
	m.Name = p.readText()
	p.field("name en")
	m.NameEn = p.readText()
	p.field("diffuse")
	m.Diffuse = p.readColor3()
	p.field("alpha")
	m.Alpha = p.readFloat()
	p.field("specular")
	m.Specular = p.readColor3()
	p.field("specularity")
	m.Specularity = p.readFloat()
	p.field("ambient")
	m.Ambient = p.readColor3()
	p.field("flags")
	m.Flags = MaterialFlags(p.readUint8())
	p.field("edge color")
	m.EdgeColor = p.readColor4()
	p.field("edge size")
	m.EdgeSize = p.readFloat()
	p.field("texture")
	m.Texture = p.readTextureIndex()
	p.field("sphere")
	m.Sphere = p.readTextureIndex()
	m.SphereMode = SphereMode(p.kindTag("sphere mode", byte(SphereSubTexture)))
	p.field("toon")
	m.ToonShared = p.readUint8() != 0
	if m.ToonShared {
		m.Toon = int(p.readUint8())
	} else {
		m.Toon = p.readTextureIndex()
	}
	p.field("memo")
	m.Memo = p.readText()
	p.field("index count")
	m.IndexCount = p.readInt()
	return &m
}

func (p *PMXParser) readBone() *PMXBone {
	var b PMXBone
	p.field("name")
	b.Name = p.readText()
	p.field("name en")
	b.NameEn = p.readText()
	p.field("position")
	b.Position = p.readVector3()
	p.field("parent")
	b.Parent = p.readBoneIndex()
	p.field("rank")
	b.Rank = p.readInt()
	p.field("flags")
	b.Flags = BoneFlags(p.readUint16())

	if unknown := b.Flags &^ BoneFlagAll; unknown != 0 && p.err == nil {
		p.logger.Warn("unsupported bone flags",
			zap.String("bone", b.Name),
			zap.Uint16("flags", uint16(unknown)))
	}

	p.field("tail")
	if b.Flags.TailIsIndex() {
		b.TailIndex = p.readBoneIndex()
	} else {
		b.TailIndex = -1
		tail := p.readVector3()
		b.TailOffset = &tail
	}

	p.field("inherit")
	if b.Flags.HasInherit() {
		b.Inherit = &BoneInherit{Parent: p.readBoneIndex(), Influence: p.readFloat()}
	}

	p.field("fixed axis")
	if b.Flags.HasFixedAxis() {
		axis := p.readVector3()
		b.FixedAxis = &axis
	}

	p.field("local axis")
	if b.Flags.HasLocalAxis() {
		b.LocalAxis = &BoneLocalAxis{X: p.readVector3(), Z: p.readVector3()}
	}

	p.field("external parent")
	if b.Flags.HasExternalParent() {
		key := p.readInt()
		b.ExternalParent = &key
	}

	p.field("ik")
	if b.Flags.IsIK() {
		b.IK = p.readIK()
	}
	return &b
}

func (p *PMXParser) readIK() *BoneIK {
	var ik BoneIK
	ik.Target = p.readBoneIndex()
	ik.Loop = p.readInt()
	ik.LimitAngle = p.readFloat()
	n := p.readInt()
	ik.Links = make([]IKLink, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		l := IKLink{Bone: p.readBoneIndex()}
		if p.readUint8() != 0 {
			l.Limit = &IKAngleLimit{Min: p.readVector3(), Max: p.readVector3()}
		}
		ik.Links = append(ik.Links, l)
	}
	return &ik
}

func (p *PMXParser) readMorph() *Morph {
	var m Morph
	m.Name = p.readText()
	m.NameEn = p.readText()
	m.Panel = p.readUint8()
	m.Kind = MorphKind(p.kindTag("morph kind", byte(MorphKindMaterial)))

	n := p.readInt()
	for i := 0; i < n && p.err == nil; i++ {
		switch {
		case m.Kind == MorphKindGroup:
			m.Group = append(m.Group, &MorphGroup{
				Target: p.readIndex(p.width(AttrMorphIndexSz), indexSigned),
				Weight: p.readFloat(),
			})
		case m.Kind == MorphKindVertex:
			m.Vertex = append(m.Vertex, &MorphVertex{
				Target: p.readIndex(p.width(AttrVertIndexSz), indexVertex),
				Offset: p.readVector3(),
			})
		case m.Kind == MorphKindBone:
			m.Bone = append(m.Bone, &MorphBone{
				Target:      p.readBoneIndex(),
				Translation: p.readVector3(),
				Rotation:    p.readQuaternion(),
			})
		case m.Kind.IsUV():
			m.UV = append(m.UV, &MorphUV{
				Target: p.readIndex(p.width(AttrVertIndexSz), indexVertex),
				Offset: p.readVector4(),
			})
		case m.Kind == MorphKindMaterial:
			m.Material = append(m.Material, p.readMaterialOffset())
		}
	}
	return &m
}

func (p *PMXParser) readMaterialOffset() *MorphMaterial {
	var v MorphMaterial
	v.Target = p.readIndex(p.width(AttrMatIndexSz), indexSigned)
	v.Mode = MaterialMorphMode(p.kindTag("offset mode", byte(MaterialMorphAdd)))
	v.Diffuse = p.readColor3()
	v.Alpha = p.readFloat()
	v.Specular = p.readColor3()
	v.Specularity = p.readFloat()
	v.Ambient = p.readColor3()
	v.EdgeColor = p.readColor4()
	v.EdgeSize = p.readFloat()
	v.TextureTint = p.readVector4()
	v.EnvironmentTint = p.readVector4()
	v.ToonTint = p.readVector4()
	return &v
}

func (p *PMXParser) readDisplayFrame() *DisplayFrame {
	var f DisplayFrame
	f.Name = p.readText()
	f.NameEn = p.readText()
	f.Special = p.readUint8() != 0
	n := p.readInt()
	f.Elements = make([]DisplayElement, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		e := DisplayElement{Morph: p.kindTag("element type", 1) == 1}
		if e.Morph {
			e.Index = p.readIndex(p.width(AttrMorphIndexSz), indexSigned)
		} else {
			e.Index = p.readBoneIndex()
		}
		f.Elements = append(f.Elements, e)
	}
	return &f
}

func (p *PMXParser) readRigidBody() *RigidBody {
	var r RigidBody
	r.Name = p.readText()
	r.NameEn = p.readText()
	r.Bone = p.readBoneIndex()
	r.Group = p.readUint8()
	r.NonCollisionMask = p.readUint16()
	r.Shape = RigidShape(p.readUint8())
	r.Size = p.readVector3()
	r.Position = p.readVector3()
	r.Rotation = p.readVector3()
	r.Mass = p.readFloat()
	r.LinearDamping = p.readFloat()
	r.AngularDamping = p.readFloat()
	r.Restitution = p.readFloat()
	r.Friction = p.readFloat()
	r.Mode = RigidMode(p.readUint8())
	return &r
}

func (p *PMXParser) readJoint() *Joint {
	var j Joint
	j.Name = p.readText()
	j.NameEn = p.readText()
	j.Type = p.readUint8()
	j.RigidA = p.readIndex(p.width(AttrRigidBodyIndexSz), indexSigned)
	j.RigidB = p.readIndex(p.width(AttrRigidBodyIndexSz), indexSigned)
	j.Position = p.readVector3()
	j.Rotation = p.readVector3()
	j.MoveMin = p.readVector3()
	j.MoveMax = p.readVector3()
	j.RotateMin = p.readVector3()
	j.RotateMax = p.readVector3()
	j.SpringMove = p.readVector3()
	j.SpringRotate = p.readVector3()
	return &j
}

// Parse model data.
func (p *PMXParser) Parse() (*PMXDocument, error) {
	var pmx PMXDocument

	p.header = p.readHeader()
	if p.err != nil {
		return nil, p.err
	}
	pmx.Header = p.header

	p.at("model info", -1)
	pmx.Name = p.readText()
	pmx.NameEn = p.readText()
	pmx.Comment = p.readText()
	pmx.CommentEn = p.readText()

	p.at("vertex", -1)
	n := p.readCount()
	pmx.Vertices = make([]*PMXVertex, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("vertex", i)
		pmx.Vertices = append(pmx.Vertices, p.readVertex())
	}

	p.at("index", -1)
	n = p.readCount()
	pmx.Indices = make([]int, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		pmx.Indices = append(pmx.Indices, p.readIndex(p.width(AttrVertIndexSz), indexVertex))
	}

	p.at("texture", -1)
	n = p.readCount()
	pmx.Textures = make([]string, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("texture", i)
		pmx.Textures = append(pmx.Textures, p.readText())
	}

	p.at("material", -1)
	n = p.readCount()
	pmx.Materials = make([]*PMXMaterial, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("material", i)
		pmx.Materials = append(pmx.Materials, p.readMaterial())
	}

	p.at("bone", -1)
	n = p.readCount()
	pmx.Bones = make([]*PMXBone, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("bone", i)
		pmx.Bones = append(pmx.Bones, p.readBone())
	}

	p.at("morph", -1)
	n = p.readCount()
	pmx.Morphs = make([]*Morph, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("morph", i)
		pmx.Morphs = append(pmx.Morphs, p.readMorph())
	}

	p.at("display frame", -1)
	n = p.readCount()
	pmx.DisplayFrames = make([]*DisplayFrame, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("display frame", i)
		pmx.DisplayFrames = append(pmx.DisplayFrames, p.readDisplayFrame())
	}

	p.at("rigid body", -1)
	n = p.readCount()
	pmx.RigidBodies = make([]*RigidBody, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("rigid body", i)
		pmx.RigidBodies = append(pmx.RigidBodies, p.readRigidBody())
	}

	p.at("joint", -1)
	n = p.readCount()
	pmx.Joints = make([]*Joint, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("joint", i)
		pmx.Joints = append(pmx.Joints, p.readJoint())
	}

	if p.err != nil {
		return nil, p.err
	}
	p.logger.Debug("pmx parsed",
		zap.String("name", pmx.Name),
		zap.Bool("utf8", pmx.Header.UTF8()),
		zap.Int("vertices", len(pmx.Vertices)),
		zap.Int("materials", len(pmx.Materials)),
		zap.Int("bones", len(pmx.Bones)),
		zap.Int("morphs", len(pmx.Morphs)),
		zap.Int64("bytes", p.off))
	return &pmx, nil
}
