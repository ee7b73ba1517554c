package mmd

import (
	"io"
	"sort"

	"go.uber.org/zap"
)

const (
	vmdHeaderLen   = 30
	vmdNameLen     = 20
	vmdBoneNameLen = 15
	vmdCameraName  = "カメラ・照明"
)

// VMDParser is parser for .vmd animation.
type VMDParser struct {
	*binaryReader
	logger *zap.Logger
}

type Animation struct {
	Header   string
	Name     string
	IsCamera bool // camera/light track instead of a model motion
	Bone     []*BoneKeyframe
	Morph    []*MorphKeyframe
	Camera   []*CameraKeyframe
	Light    []*LightKeyframe
}

// ControlPoint is a Bezier handle in 0..127 units.
type ControlPoint struct {
	X uint8
	Y uint8
}

// BezierCurve is a cubic curve from (0,0) to (127,127) with handles A and B.
type BezierCurve struct {
	A ControlPoint
	B ControlPoint
}

// Normalized returns the handles scaled into 0..1.
func (c BezierCurve) Normalized() (ax, ay, bx, by float32) {
	return float32(c.A.X) / 127, float32(c.A.Y) / 127, float32(c.B.X) / 127, float32(c.B.Y) / 127
}

// Interpolation curve slots of BoneKeyframe.
const (
	InterpolationX = iota
	InterpolationY
	InterpolationZ
	InterpolationRotation
)

type BoneKeyframe struct {
	Bone          string
	Frame         uint32
	Position      Vector3
	Rotation      Quaternion
	Interpolation [4]BezierCurve
}

type MorphKeyframe struct {
	Morph  string
	Frame  uint32
	Weight float32
}

type CameraKeyframe struct {
	Frame         uint32
	Distance      float32
	Position      Vector3
	Rotation      Vector3
	Interpolation [24]byte
	FoV           uint32
	Perspective   byte
}

type LightKeyframe struct {
	Frame    uint32
	Color    Color3
	Position Vector3
}

// NewVMDParser returns new parser.
func NewVMDParser(r io.Reader) *VMDParser {
	return &VMDParser{binaryReader: newBinaryReader(r), logger: zap.NewNop()}
}

// unpackInterpolation splits the 64 byte block: curve i uses bytes i, i+4, i+8
// and i+12 as AX, AY, BX, BY.
func unpackInterpolation(b []byte) (curves [4]BezierCurve) {
	if len(b) < 16 {
		return
	}
	for i := range curves {
		curves[i] = BezierCurve{
			A: ControlPoint{X: b[i], Y: b[i+4]},
			B: ControlPoint{X: b[i+8], Y: b[i+12]},
		}
	}
	return
}

func (p *VMDParser) readBoneKeyframe() *BoneKeyframe {
	var k BoneKeyframe
	p.field("bone")
	k.Bone = p.readFixedString(vmdBoneNameLen)
	p.field("frame")
	k.Frame = p.readUint32()
	p.field("position")
	k.Position = p.readVector3()
	p.field("rotation")
	k.Rotation = p.readQuaternion()
	k.Interpolation = unpackInterpolation(p.readBytes(64, "interpolation"))
	return &k
}

func (p *VMDParser) readCameraKeyframe() *CameraKeyframe {
	var k CameraKeyframe
	k.Frame = p.readUint32()
	k.Distance = p.readFloat()
	k.Position = p.readVector3()
	k.Rotation = p.readVector3()
	copy(k.Interpolation[:], p.readBytes(len(k.Interpolation), "interpolation"))
	k.FoV = p.readUint32()
	k.Perspective = p.readUint8()
	return &k
}

// Parse animation data.
func (p *VMDParser) Parse() (*Animation, error) {
	var anim Animation

	p.at("header", -1)
	anim.Header = p.readFixedString(vmdHeaderLen)
	anim.Name = p.readFixedString(vmdNameLen)
	anim.IsCamera = anim.Name == vmdCameraName

	p.at("bone frame", -1)
	n := p.readCount()
	anim.Bone = make([]*BoneKeyframe, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("bone frame", i)
		anim.Bone = append(anim.Bone, p.readBoneKeyframe())
	}

	p.at("morph frame", -1)
	n = p.readCount()
	anim.Morph = make([]*MorphKeyframe, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		p.at("morph frame", i)
		anim.Morph = append(anim.Morph, &MorphKeyframe{
			Morph:  p.readFixedString(vmdBoneNameLen),
			Frame:  p.readUint32(),
			Weight: p.readFloat(),
		})
	}

	// Older files end here.
	p.at("camera frame", -1)
	if n, ok := p.tryReadCount(); ok {
		for i := 0; i < n && p.err == nil; i++ {
			p.at("camera frame", i)
			anim.Camera = append(anim.Camera, p.readCameraKeyframe())
		}
		p.at("light frame", -1)
		if n, ok := p.tryReadCount(); ok {
			for i := 0; i < n && p.err == nil; i++ {
				p.at("light frame", i)
				anim.Light = append(anim.Light, &LightKeyframe{
					Frame:    p.readUint32(),
					Color:    p.readColor3(),
					Position: p.readVector3(),
				})
			}
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	p.logger.Debug("vmd parsed",
		zap.String("name", anim.Name),
		zap.Bool("camera", anim.IsCamera),
		zap.Int("bone frames", len(anim.Bone)),
		zap.Int("morph frames", len(anim.Morph)))
	return &anim, nil
}

type BoneChannel struct {
	Bone      string
	Frames    []uint32
	Positions []Vector3
	Rotations []Quaternion
}

type MorphChannel struct {
	Morph   string
	Frames  []uint32
	Weights []float32
}

// BoneChannels groups bone keyframes by bone in frame order.
func (a *Animation) BoneChannels() map[string]*BoneChannel {
	frames := append([]*BoneKeyframe(nil), a.Bone...)
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Frame < frames[j].Frame })

	r := map[string]*BoneChannel{}
	for _, k := range frames {
		c, ok := r[k.Bone]
		if !ok {
			c = &BoneChannel{Bone: k.Bone}
			r[k.Bone] = c
		}
		c.Frames = append(c.Frames, k.Frame)
		c.Positions = append(c.Positions, k.Position)
		c.Rotations = append(c.Rotations, k.Rotation)
	}
	return r
}

// MorphChannels groups morph keyframes by morph in frame order.
func (a *Animation) MorphChannels() map[string]*MorphChannel {
	frames := append([]*MorphKeyframe(nil), a.Morph...)
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Frame < frames[j].Frame })

	r := map[string]*MorphChannel{}
	for _, k := range frames {
		c, ok := r[k.Morph]
		if !ok {
			c = &MorphChannel{Morph: k.Morph}
			r[k.Morph] = c
		}
		c.Frames = append(c.Frames, k.Frame)
		c.Weights = append(c.Weights, k.Weight)
	}
	return r
}
