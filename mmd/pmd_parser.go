package mmd

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	pmdMagic          = "Pmd"
	pmdNameLen        = 20
	pmdCommentLen     = 256
	pmdBoneDispLen    = 50
	pmdToonSlots      = 10
	pmdToonNameLen    = 100
	pmdRigidBodyBytes = 83
	pmdJointBytes     = 124
)

// PMD bone kinds that map into BoneFlags.
const (
	pmdBoneRotate     byte = 0
	pmdBoneRotateMove byte = 1
	pmdBoneIK         byte = 2
)

type PMDHeader struct {
	Magic   string
	Version float32
	Name    string
	Comment string
}

type PMDVertex struct {
	Position Vector3
	Normal   Vector3
	UV       Vector2
	Bones    [2]int
	Weight   byte // percentage of Bones[0], 0..100
	EdgeOff  byte // 1 excludes the vertex from edge drawing
}

type PMDMaterial struct {
	Diffuse     Color3
	Alpha       float32
	Specularity float32
	Specular    Color3
	Ambient     Color3
	ToonID      byte
	EdgeFlag    byte
	IndexCount  int

	Texture string
	Sphere  string
}

type PMDBone struct {
	Name     string
	Parent   int
	Tail     int // -1 when the file stores 0
	Kind     byte
	Flags    BoneFlags
	IKParent int
	Position Vector3
}

type PMDIK struct {
	Bone          int
	Target        int
	Iterations    int
	ControlWeight float32
	Links         []int
}

type PMDSkinVertex struct {
	Index  int
	Offset Vector3
}

// PMDSkin is a PMD vertex morph. The first skin (kind 0) is the base skin that
// holds absolute vertex indices; the others index into it.
type PMDSkin struct {
	Name     string
	Kind     byte
	Vertices []PMDSkinVertex
}

type PMDDocument struct {
	Header      *PMDHeader
	Vertices    []*PMDVertex
	Indices     []int
	Materials   []*PMDMaterial
	Bones       []*PMDBone
	IKs         []*PMDIK
	Skins       []*PMDSkin
	Toons       [pmdToonSlots]string
	RigidBodies []*RigidBody
	Joints      []*Joint
}

// PMDParser is parser for .pmd model.
type PMDParser struct {
	*binaryReader
	logger *zap.Logger
}

// NewPMDParser returns new parser.
func NewPMDParser(r io.Reader) *PMDParser {
	return &PMDParser{binaryReader: newBinaryReader(r), logger: zap.NewNop()}
}

func (p *PMDParser) readHeader() *PMDHeader {
	p.at("header", -1)
	var h PMDHeader
	magic := p.readBytes(len(pmdMagic), "magic")
	if p.err == nil && string(magic) != pmdMagic {
		p.fail(0, "magic", fmt.Errorf("%w: %q", ErrInvalidMagic, magic))
	}
	h.Magic = string(magic)
	h.Version = p.readFloat()
	h.Name = p.readFixedString(pmdNameLen)
	h.Comment = p.readFixedString(pmdCommentLen)
	return &h
}

func (p *PMDParser) readVertex() *PMDVertex {
	var v PMDVertex
	p.field("position")
	v.Position = p.readVector3()
	p.field("normal")
	v.Normal = p.readVector3()
	p.field("uv")
	v.UV = p.readVector2()
	p.field("bones")
	v.Bones = [2]int{int(p.readInt16()), int(p.readInt16())}
	p.field("weight")
	v.Weight = p.readUint8()
	p.field("edge")
	v.EdgeOff = p.readUint8()
	return &v
}

func (p *PMDParser) readMaterial() *PMDMaterial {
	var m PMDMaterial
	p.field("diffuse")
	m.Diffuse = p.readColor3()
	p.field("alpha")
	m.Alpha = p.readFloat()
	p.field("specularity")
	m.Specularity = p.readFloat()
	p.field("specular")
	m.Specular = p.readColor3()
	p.field("ambient")
	m.Ambient = p.readColor3()
	p.field("toon")
	m.ToonID = p.readUint8()
	p.field("edge")
	m.EdgeFlag = p.readUint8()
	m.IndexCount = p.readCount()
	p.field("texture")
	m.Texture, m.Sphere = splitPMDTexture(p.readFixedString(pmdNameLen))
	return &m
}

// splitPMDTexture splits "tex.bmp*sphere.sph" into base and sphere file names.
func splitPMDTexture(field string) (texture, sphere string) {
	for _, name := range strings.Split(field, "*") {
		if name == "" {
			continue
		}
		if isSphereFile(name) {
			sphere = name
		} else {
			texture = name
		}
	}
	return
}

func isSphereFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, ".sph") || strings.Contains(lower, ".spa")
}

func pmdBoneFlags(kind byte) BoneFlags {
	switch kind {
	case pmdBoneRotate:
		return BoneFlagRotatable
	case pmdBoneRotateMove:
		return BoneFlagRotatable | BoneFlagTranslatable
	case pmdBoneIK:
		return BoneFlagIK
	}
	return 0
}

func (p *PMDParser) readBone() *PMDBone {
	var b PMDBone
	p.field("name")
	b.Name = p.readFixedString(pmdNameLen)
	p.field("parent")
	b.Parent = int(p.readInt16())
	p.field("tail")
	b.Tail = int(p.readInt16())
	if b.Tail == 0 {
		b.Tail = -1
	}
	p.field("kind")
	b.Kind = p.readUint8()
	b.Flags = pmdBoneFlags(b.Kind)
	p.field("ik parent")
	b.IKParent = int(p.readInt16())
	p.field("position")
	b.Position = p.readVector3()
	return &b
}

func (p *PMDParser) readIK() *PMDIK {
	var ik PMDIK
	ik.Bone = int(p.readInt16())
	ik.Target = int(p.readInt16())
	n := int(p.readUint8())
	ik.Iterations = int(p.readUint16())
	ik.ControlWeight = p.readFloat()
	ik.Links = make([]int, 0, n)
	for i := 0; i < n && p.err == nil; i++ {
		ik.Links = append(ik.Links, int(p.readInt16()))
	}
	return &ik
}

func (p *PMDParser) readSkin() *PMDSkin {
	var s PMDSkin
	s.Name = p.readFixedString(pmdNameLen)
	n := p.readCount()
	s.Kind = p.readUint8()
	s.Vertices = make([]PMDSkinVertex, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		s.Vertices = append(s.Vertices, PMDSkinVertex{Index: p.readInt(), Offset: p.readVector3()})
	}
	return &s
}

func (p *PMDParser) readRigidBody() *RigidBody {
	var r RigidBody
	r.Name = p.readFixedString(pmdNameLen)
	r.Bone = int(p.readInt16())
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

func (p *PMDParser) readJoint() *Joint {
	var j Joint
	j.Name = p.readFixedString(pmdNameLen)
	j.RigidA = p.readInt()
	j.RigidB = p.readInt()
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

// skipDisplaySections consumes the display lists and the optional English block
// that sit between the skins and the toon table.
func (p *PMDParser) skipDisplaySections(bones, skins int) {
	p.at("skin display", -1)
	p.skipUint16(int(p.readUint8()))

	p.at("bone display name", -1)
	boneDispNames := int(p.readUint8())
	p.skip(pmdBoneDispLen * boneDispNames)

	p.at("bone display", -1)
	p.skip(3 * p.readCount())

	p.at("english", -1)
	if p.readUint8() == 1 {
		englishSkins := skins - 1
		if englishSkins < 0 {
			englishSkins = 0
		}
		p.skip(pmdNameLen + pmdCommentLen)
		p.skip(pmdNameLen * bones)
		p.skip(pmdNameLen * englishSkins)
		p.skip(pmdBoneDispLen * boneDispNames)
	}
}

// Parse model data.
func (p *PMDParser) Parse() (*PMDDocument, error) {
	var doc PMDDocument

	doc.Header = p.readHeader()
	if p.err != nil {
		return nil, p.err
	}

	// Vertexes
	p.at("vertex", -1)
	n := p.readCount()
	doc.Vertices = make([]*PMDVertex, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("vertex", i)
		doc.Vertices = append(doc.Vertices, p.readVertex())
	}

	// Faces
	p.at("index", -1)
	n = p.readCount()
	doc.Indices = make([]int, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		doc.Indices = append(doc.Indices, int(p.readUint16()))
	}

	// Materials
	p.at("material", -1)
	n = p.readCount()
	doc.Materials = make([]*PMDMaterial, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("material", i)
		doc.Materials = append(doc.Materials, p.readMaterial())
	}

	// Bones
	p.at("bone", -1)
	n = int(p.readUint16())
	doc.Bones = make([]*PMDBone, 0, n)
	for i := 0; i < n && p.err == nil; i++ {
		p.at("bone", i)
		doc.Bones = append(doc.Bones, p.readBone())
	}

	// IK
	p.at("ik", -1)
	n = int(p.readUint16())
	doc.IKs = make([]*PMDIK, 0, n)
	for i := 0; i < n && p.err == nil; i++ {
		p.at("ik", i)
		doc.IKs = append(doc.IKs, p.readIK())
	}

	// Morph
	p.at("skin", -1)
	n = int(p.readUint16())
	doc.Skins = make([]*PMDSkin, 0, n)
	for i := 0; i < n && p.err == nil; i++ {
		p.at("skin", i)
		doc.Skins = append(doc.Skins, p.readSkin())
	}
	if p.err != nil {
		return nil, p.err
	}

	p.skipDisplaySections(len(doc.Bones), len(doc.Skins))

	for i := range doc.Toons {
		p.at("toon", i)
		doc.Toons[i] = p.readFixedString(pmdToonNameLen)
	}

	p.at("rigid body", -1)
	n = p.readCount()
	doc.RigidBodies = make([]*RigidBody, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("rigid body", i)
		doc.RigidBodies = append(doc.RigidBodies, p.readRigidBody())
	}

	p.at("joint", -1)
	n = p.readCount()
	doc.Joints = make([]*Joint, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("joint", i)
		doc.Joints = append(doc.Joints, p.readJoint())
	}
	if p.err != nil {
		return nil, p.err
	}

	p.logger.Debug("pmd parsed",
		zap.String("name", doc.Header.Name),
		zap.Int("vertices", len(doc.Vertices)),
		zap.Int("materials", len(doc.Materials)),
		zap.Int("bones", len(doc.Bones)),
		zap.Int64("bytes", p.off))
	return &doc, nil
}
