package mmd

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// fixtureWriter writes little-endian test data in the layouts the parsers read.
type fixtureWriter struct {
	buf  bytes.Buffer
	info []byte // PMX header info, for text encoding and index widths
}

func (w *fixtureWriter) Bytes() []byte { return w.buf.Bytes() }
func (w *fixtureWriter) Len() int      { return w.buf.Len() }

func (w *fixtureWriter) write(v interface{}) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *fixtureWriter) writeUint8(v uint8)   { w.write(v) }
func (w *fixtureWriter) writeUint16(v uint16) { w.write(v) }
func (w *fixtureWriter) writeInt16(v int16)   { w.write(v) }
func (w *fixtureWriter) writeUint32(v uint32) { w.write(v) }
func (w *fixtureWriter) writeInt(v int)       { w.write(int32(v)) }

func (w *fixtureWriter) writeFloat(v ...float32) {
	for _, f := range v {
		w.write(f)
	}
}

func (w *fixtureWriter) writeVInt(sz byte, v int) {
	switch sz {
	case 1:
		w.write(int8(v))
	case 2:
		w.write(int16(v))
	default:
		w.write(int32(v))
	}
}

func (w *fixtureWriter) writeVUInt(sz byte, v int) {
	switch sz {
	case 1:
		w.write(uint8(v))
	case 2:
		w.write(uint16(v))
	default:
		w.write(int32(v))
	}
}

func (w *fixtureWriter) writeIndex(attr int, v int) {
	w.writeVInt(w.info[attr], v)
}

func (w *fixtureWriter) writeUIndex(attr int, v int) {
	w.writeVUInt(w.info[attr], v)
}

func (w *fixtureWriter) writeText(s string) {
	b := []byte(s)
	if w.info != nil && w.info[AttrStringEncoding] == 0 {
		b, _ = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(b)
	}
	w.writeInt(len(b))
	w.buf.Write(b)
}

// textLen returns the bytes writeText uses for s.
func (w *fixtureWriter) textLen(s string) int {
	b := []byte(s)
	if w.info != nil && w.info[AttrStringEncoding] == 0 {
		b, _ = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(b)
	}
	return 4 + len(b)
}

// writeFixed writes s as Shift_JIS padded with NUL to n bytes.
func (w *fixtureWriter) writeFixed(s string, n int) {
	b, _ := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	field := make([]byte, n)
	copy(field, b)
	w.buf.Write(field)
}

func (w *fixtureWriter) writePMXHeader(info []byte) {
	w.info = info
	w.buf.WriteString(pmxMagic)
	w.writeFloat(2.0)
	w.writeUint8(uint8(len(info)))
	w.buf.Write(info)
}

// UTF-16, one extra UV, vertex 2, texture 1, material 1, bone 2, morph 1, rigid 1.
var sampleInfo = []byte{0, 1, 2, 1, 1, 2, 1, 1}

type fixtureBone struct {
	name       string
	parent     int
	flags      BoneFlags
	tail       int
	inherit    int
	ikTarget   int
	ikLinks    []int
	ikLimited  []bool
	externalID int
}

func (w *fixtureWriter) writeBone(b fixtureBone) {
	w.writeText(b.name)
	w.writeText("")
	w.writeFloat(0, 1, 0)
	w.writeIndex(AttrBoneIndexSz, b.parent)
	w.writeInt(0)
	w.writeUint16(uint16(b.flags))
	if b.flags&BoneFlagTailIndex != 0 {
		w.writeIndex(AttrBoneIndexSz, b.tail)
	} else {
		w.writeFloat(0, 1, 0)
	}
	if b.flags&(BoneFlagInheritRotation|BoneFlagInheritTranslation) != 0 {
		w.writeIndex(AttrBoneIndexSz, b.inherit)
		w.writeFloat(0.5)
	}
	if b.flags&BoneFlagFixedAxis != 0 {
		w.writeFloat(1, 0, 0)
	}
	if b.flags&BoneFlagLocalAxis != 0 {
		w.writeFloat(1, 0, 0)
		w.writeFloat(0, 0, 1)
	}
	if b.flags&BoneFlagExternalParent != 0 {
		w.writeInt(b.externalID)
	}
	if b.flags&BoneFlagIK != 0 {
		w.writeIndex(AttrBoneIndexSz, b.ikTarget)
		w.writeInt(40)
		w.writeFloat(0.5)
		w.writeInt(len(b.ikLinks))
		for i, l := range b.ikLinks {
			w.writeIndex(AttrBoneIndexSz, l)
			if i < len(b.ikLimited) && b.ikLimited[i] {
				w.writeUint8(1)
				w.writeFloat(-1, 0, 0)
				w.writeFloat(0, 0, 0)
			} else {
				w.writeUint8(0)
			}
		}
	}
}

func (w *fixtureWriter) writeMorphHeader(name string, kind MorphKind, n int) {
	w.writeText(name)
	w.writeText(name + "_en")
	w.writeUint8(1)
	w.writeUint8(uint8(kind))
	w.writeInt(n)
}

func (w *fixtureWriter) writeMaterialOffset(target int, mode byte) {
	w.writeIndex(AttrMatIndexSz, target)
	w.writeUint8(mode)
	w.writeFloat(1, 1, 1, 0.5) // diffuse, alpha
	w.writeFloat(0, 0, 0, 1)   // specular, specularity
	w.writeFloat(0.2, 0.2, 0.2)
	w.writeFloat(0, 0, 0, 1) // edge color
	w.writeFloat(2)
	w.writeFloat(1, 1, 1, 1)
	w.writeFloat(1, 1, 1, 1)
	w.writeFloat(1, 1, 1, 1)
}

// samplePMX builds a PMX file using every record shape.
func samplePMX(info []byte) []byte {
	w := &fixtureWriter{}
	w.writePMXHeader(info)
	w.writeText("モデル")
	w.writeText("Model")
	w.writeText("コメント")
	w.writeText("comment")

	extUV := func() {
		for i := 0; i < int(info[AttrExtUV]); i++ {
			w.writeFloat(1, 2, 3, 4)
		}
	}

	// vertices, one per blend type
	w.writeInt(4)
	w.writeFloat(1, 2, 3, 0, 1, 0, 0.5, 0.5)
	extUV()
	w.writeUint8(0)
	w.writeIndex(AttrBoneIndexSz, 0)
	w.writeFloat(1)

	w.writeFloat(4, 5, 6, 0, 1, 0, 0, 1)
	extUV()
	w.writeUint8(1)
	w.writeIndex(AttrBoneIndexSz, 0)
	w.writeIndex(AttrBoneIndexSz, 1)
	w.writeFloat(0.25)
	w.writeFloat(1)

	w.writeFloat(7, 8, 9, 0, 1, 0, 1, 0)
	extUV()
	w.writeUint8(2)
	w.writeIndex(AttrBoneIndexSz, 0)
	w.writeIndex(AttrBoneIndexSz, 1)
	w.writeIndex(AttrBoneIndexSz, 2)
	w.writeIndex(AttrBoneIndexSz, -1)
	w.writeFloat(0.5, 0.5, 0.5, 0.5)
	w.writeFloat(0.5)

	w.writeFloat(1, 1, 1, 0, 0, 1, 1, 1)
	extUV()
	w.writeUint8(3)
	w.writeIndex(AttrBoneIndexSz, 1)
	w.writeIndex(AttrBoneIndexSz, 2)
	w.writeFloat(0.75)
	w.writeFloat(0, 1, 0, 0, 2, 0, 0, 3, 0)
	w.writeFloat(1)

	// indices
	w.writeInt(6)
	for _, i := range []int{0, 1, 2, 1, 2, 3} {
		w.writeUIndex(AttrVertIndexSz, i)
	}

	// textures
	w.writeInt(3)
	w.writeText("tex/body.png")
	w.writeText("sphere.sph")
	w.writeText("toon_custom.bmp")

	// materials
	w.writeInt(2)
	w.writeText("肌")
	w.writeText("skin")
	w.writeFloat(1, 0.5, 0.25, 1)
	w.writeFloat(0.1, 0.1, 0.1, 5)
	w.writeFloat(0.5, 0.5, 0.5)
	w.writeUint8(uint8(MaterialFlagDrawBoth | MaterialFlagDrawEdge))
	w.writeFloat(0, 0, 0, 1, 1)
	w.writeIndex(AttrTexIndexSz, 0)
	w.writeIndex(AttrTexIndexSz, 1)
	w.writeUint8(uint8(SphereMultiply))
	w.writeUint8(0)
	w.writeIndex(AttrTexIndexSz, 2)
	w.writeText("memo")
	w.writeInt(3)

	w.writeText("服")
	w.writeText("cloth")
	w.writeFloat(0.2, 0.2, 0.2, 0.5)
	w.writeFloat(0, 0, 0, 1)
	w.writeFloat(0.1, 0.1, 0.1)
	w.writeUint8(0)
	w.writeFloat(0, 0, 0, 1, 0.5)
	w.writeIndex(AttrTexIndexSz, -1)
	w.writeIndex(AttrTexIndexSz, 5)
	w.writeUint8(uint8(SphereAdd))
	w.writeUint8(1)
	w.writeUint8(3)
	w.writeText("")
	w.writeInt(3)

	// bones
	w.writeInt(3)
	w.writeBone(fixtureBone{name: "センター", parent: -1, tail: 1,
		flags: BoneFlagTailIndex | BoneFlagRotatable | BoneFlagTranslatable | BoneFlagVisible | BoneFlagEnabled})
	w.writeBone(fixtureBone{name: "上半身", parent: 0, inherit: 0, externalID: 7,
		flags: BoneFlagRotatable | BoneFlagVisible | BoneFlagEnabled | BoneFlagInheritRotation |
			BoneFlagFixedAxis | BoneFlagLocalAxis | BoneFlagExternalParent})
	w.writeBone(fixtureBone{name: "足ＩＫ", parent: 0, ikTarget: 1, ikLinks: []int{0, 1}, ikLimited: []bool{true, false},
		flags: BoneFlagRotatable | BoneFlagTranslatable | BoneFlagVisible | BoneFlagEnabled | BoneFlagIK})

	// morphs, one per kind
	w.writeInt(9)
	w.writeMorphHeader("group", MorphKindGroup, 1)
	w.writeIndex(AttrMorphIndexSz, 1)
	w.writeFloat(0.5)

	w.writeMorphHeader("vertex", MorphKindVertex, 1)
	w.writeUIndex(AttrVertIndexSz, 3)
	w.writeFloat(0, 0.1, 0)

	w.writeMorphHeader("bone", MorphKindBone, 1)
	w.writeIndex(AttrBoneIndexSz, 1)
	w.writeFloat(0, 1, 0)
	w.writeFloat(0, 0, 0, 1)

	for k := MorphKindUV; k <= MorphKindExtUV4; k++ {
		w.writeMorphHeader(k.String(), k, 1)
		w.writeUIndex(AttrVertIndexSz, 2)
		w.writeFloat(0.1, 0.2, 0.3, 0.4)
	}

	w.writeMorphHeader("material", MorphKindMaterial, 1)
	w.writeMaterialOffset(-1, 1)

	// display frames
	w.writeInt(1)
	w.writeText("Root")
	w.writeText("Root")
	w.writeUint8(1)
	w.writeInt(2)
	w.writeUint8(0)
	w.writeIndex(AttrBoneIndexSz, 0)
	w.writeUint8(1)
	w.writeIndex(AttrMorphIndexSz, 1)

	// rigid bodies
	w.writeInt(1)
	w.writeText("頭")
	w.writeText("head")
	w.writeIndex(AttrBoneIndexSz, 1)
	w.writeUint8(2)
	w.writeUint16(0xfffe)
	w.writeUint8(uint8(RigidShapeBox))
	w.writeFloat(1, 1, 1, 0, 10, 0, 0, 0, 0)
	w.writeFloat(1, 0.5, 0.5, 0, 0.5)
	w.writeUint8(uint8(RigidModeDynamic))

	// joints
	w.writeInt(1)
	w.writeText("首")
	w.writeText("neck")
	w.writeUint8(0)
	w.writeIndex(AttrRigidBodyIndexSz, 0)
	w.writeIndex(AttrRigidBodyIndexSz, -1)
	for i := 0; i < 8; i++ {
		w.writeFloat(float32(i), 0, 0)
	}
	return w.Bytes()
}

type fixtureSkin struct {
	name  string
	kind  byte
	index []int
}

// samplePMD builds a PMD file with every section, including the English block.
func samplePMD() []byte {
	w := &fixtureWriter{}
	w.buf.WriteString(pmdMagic)
	w.writeFloat(1.0)
	w.writeFixed("テスト", pmdNameLen)
	w.writeFixed("コメント", pmdCommentLen)

	// vertices: weight, edge flag
	w.writeUint32(3)
	for i, v := range [][2]uint8{{100, 0}, {0, 1}, {37, 0}} {
		w.writeFloat(float32(i), 1, 0, 0, 0, 1, 0, 0)
		w.writeInt16(0)
		w.writeInt16(1)
		w.writeUint8(v[0])
		w.writeUint8(v[1])
	}

	w.writeUint32(6)
	for _, i := range []uint16{0, 1, 2, 2, 1, 0} {
		w.writeUint16(i)
	}

	w.writeUint32(2)
	w.writeFloat(1, 0.5, 0.25, 0.8)
	w.writeFloat(5, 0.1, 0.1, 0.1)
	w.writeFloat(0.3, 0.3, 0.3)
	w.writeUint8(1)
	w.writeUint8(1)
	w.writeUint32(3)
	w.writeFixed("body.bmp*face.sph", pmdNameLen)

	w.writeFloat(0, 0, 0, 1)
	w.writeFloat(0, 0, 0, 0)
	w.writeFloat(0, 0, 0)
	w.writeUint8(2)
	w.writeUint8(0)
	w.writeUint32(3)
	w.writeFixed("light.spa", pmdNameLen)

	// bones: kinds 0, 1, 2
	w.writeUint16(3)
	for i, kind := range []uint8{0, 1, 2} {
		w.writeFixed([]string{"センター", "頭", "足IK"}[i], pmdNameLen)
		w.writeInt16(int16(i - 1))
		w.writeInt16([]int16{1, 0, 0}[i])
		w.writeUint8(kind)
		w.writeInt16(0)
		w.writeFloat(0, float32(i), 0)
	}

	w.writeUint16(1)
	w.writeInt16(2)
	w.writeInt16(1)
	w.writeUint8(2)
	w.writeUint16(15)
	w.writeFloat(0.5)
	w.writeInt16(1)
	w.writeInt16(0)

	skins := []fixtureSkin{
		{name: "base", kind: 0, index: []int{0, 2}},
		{name: "まばたき", kind: 1, index: []int{1, 0}},
	}
	w.writeUint16(uint16(len(skins)))
	for _, s := range skins {
		w.writeFixed(s.name, pmdNameLen)
		w.writeUint32(uint32(len(s.index)))
		w.writeUint8(s.kind)
		for _, i := range s.index {
			w.writeInt(i)
			w.writeFloat(0, 0.5, 0)
		}
	}

	// skin display, bone display names, bone display
	w.writeUint8(1)
	w.writeUint16(1)
	w.writeUint8(1)
	w.writeFixed("体", pmdBoneDispLen)
	w.writeUint32(1)
	w.writeInt16(1)
	w.writeUint8(1)

	// English names
	w.writeUint8(1)
	w.writeFixed("test", pmdNameLen)
	w.writeFixed("comment", pmdCommentLen)
	for i := 0; i < 3; i++ {
		w.writeFixed("bone", pmdNameLen)
	}
	w.writeFixed("blink", pmdNameLen)
	w.writeFixed("body", pmdBoneDispLen)

	toons := []string{"toon01.bmp", "custom.bmp"}
	for i := 0; i < pmdToonSlots; i++ {
		name := ""
		if i < len(toons) {
			name = toons[i]
		}
		w.writeFixed(name, pmdToonNameLen)
	}

	w.writeUint32(1)
	w.writeFixed("頭", pmdNameLen)
	w.writeInt16(1)
	w.writeUint8(3)
	w.writeUint16(0xffff)
	w.writeUint8(uint8(RigidShapeCapsule))
	w.writeFloat(1, 2, 0, 0, 1, 0, 0, 0, 0)
	w.writeFloat(1, 0.5, 0.5, 0, 0.5)
	w.writeUint8(uint8(RigidModeStatic))

	w.writeUint32(1)
	w.writeFixed("首", pmdNameLen)
	w.writeInt(0)
	w.writeInt(0)
	for i := 0; i < 8; i++ {
		w.writeFloat(0, float32(i), 0)
	}
	return w.Bytes()
}

// sampleVMD builds a motion; sections selects how many optional sections follow.
func sampleVMD(name string, sections int) []byte {
	w := &fixtureWriter{}
	w.writeFixed("Vocaloid Motion Data 0002", vmdHeaderLen)
	w.writeFixed(name, vmdNameLen)

	interp := make([]byte, 64)
	for i := range interp {
		interp[i] = byte(i)
	}
	w.writeUint32(3)
	for _, f := range []struct {
		bone  string
		frame uint32
	}{{"センター", 10}, {"頭", 5}, {"センター", 0}} {
		w.writeFixed(f.bone, vmdBoneNameLen)
		w.writeUint32(f.frame)
		w.writeFloat(0, float32(f.frame), 0)
		w.writeFloat(0, 0, 0, 1)
		w.buf.Write(interp)
	}

	w.writeUint32(2)
	w.writeFixed("まばたき", vmdBoneNameLen)
	w.writeUint32(30)
	w.writeFloat(1)
	w.writeFixed("まばたき", vmdBoneNameLen)
	w.writeUint32(0)
	w.writeFloat(0)

	if sections > 0 {
		w.writeUint32(1)
		w.writeUint32(0)
		w.writeFloat(-45)
		w.writeFloat(0, 10, 0)
		w.writeFloat(0.1, 0, 0)
		w.buf.Write(interp[:24])
		w.writeUint32(30)
		w.writeUint8(0)
	}
	if sections > 1 {
		w.writeUint32(1)
		w.writeUint32(0)
		w.writeFloat(0.6, 0.6, 0.6)
		w.writeFloat(-0.5, -1, 0.5)
	}
	return w.Bytes()
}
