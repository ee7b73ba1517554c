package mmd

import (
	"bytes"
	"errors"
	"testing"
)

func TestVMDParse(t *testing.T) {
	anim, err := NewVMDParser(bytes.NewReader(sampleVMD("初音ミク", 0))).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if anim.Name != "初音ミク" || anim.IsCamera {
		t.Error("name", anim.Name, anim.IsCamera)
	}
	if anim.Header != "Vocaloid Motion Data 0002" {
		t.Error("header", anim.Header)
	}
	if len(anim.Bone) != 3 || len(anim.Morph) != 2 || anim.Camera != nil || anim.Light != nil {
		t.Fatal("counts", len(anim.Bone), len(anim.Morph), len(anim.Camera), len(anim.Light))
	}

	k := anim.Bone[0]
	if k.Bone != "センター" || k.Frame != 10 || k.Position != (Vector3{0, 10, 0}) || k.Rotation != (Quaternion{0, 0, 0, 1}) {
		t.Error("bone frame", k)
	}
	// byte n of the block holds n
	for _, slot := range []int{InterpolationX, InterpolationY, InterpolationZ, InterpolationRotation} {
		want := BezierCurve{
			A: ControlPoint{X: uint8(slot), Y: uint8(slot + 4)},
			B: ControlPoint{X: uint8(slot + 8), Y: uint8(slot + 12)},
		}
		if c := k.Interpolation[slot]; c != want {
			t.Errorf("curve %d: %v", slot, c)
		}
	}
	if k.Interpolation[InterpolationRotation].A.X != 3 {
		t.Error("rotation curve", k.Interpolation[InterpolationRotation])
	}
	if m := anim.Morph[0]; m.Morph != "まばたき" || m.Frame != 30 || m.Weight != 1 {
		t.Error("morph frame", m)
	}
}

func TestVMDCameraTrack(t *testing.T) {
	anim, err := NewVMDParser(bytes.NewReader(sampleVMD("カメラ・照明", 2))).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if !anim.IsCamera {
		t.Error("camera marker not detected")
	}
	if len(anim.Camera) != 1 || len(anim.Light) != 1 {
		t.Fatal("sections", len(anim.Camera), len(anim.Light))
	}
	c := anim.Camera[0]
	if c.Distance != -45 || c.Position != (Vector3{0, 10, 0}) || c.FoV != 30 || c.Interpolation[23] != 23 {
		t.Error("camera", c)
	}
	if l := anim.Light[0]; l.Color != (Color3{0.6, 0.6, 0.6}) || l.Position != (Vector3{-0.5, -1, 0.5}) {
		t.Error("light", l)
	}
}

func TestVMDOptionalSections(t *testing.T) {
	for sections := 0; sections <= 2; sections++ {
		if _, err := NewVMDParser(bytes.NewReader(sampleVMD("m", sections))).Parse(); err != nil {
			t.Error(sections, err)
		}
	}

	// ending inside the camera section is an error
	data := sampleVMD("m", 1)
	anim, err := NewVMDParser(bytes.NewReader(data[:len(data)-3])).Parse()
	if anim != nil || !errors.Is(err, ErrUnexpectedEOD) {
		t.Error(err)
	}
}

func TestVMDTruncated(t *testing.T) {
	data := sampleVMD("m", 0)
	for n := 0; n < len(data); n++ {
		anim, err := NewVMDParser(bytes.NewReader(data[:n])).Parse()
		if anim != nil || !errors.Is(err, ErrUnexpectedEOD) {
			t.Fatalf("truncated at %d: %v", n, err)
		}
		checkFieldName(t, n, err)
	}
}

func TestAnimationChannels(t *testing.T) {
	anim, err := NewVMDParser(bytes.NewReader(sampleVMD("m", 0))).Parse()
	if err != nil {
		t.Fatal(err)
	}
	ch := anim.BoneChannels()
	if len(ch) != 2 {
		t.Fatal("channels", len(ch))
	}
	c := ch["センター"]
	if c == nil || len(c.Frames) != 2 || c.Frames[0] != 0 || c.Frames[1] != 10 || c.Positions[1] != (Vector3{0, 10, 0}) {
		t.Error("center", c)
	}
	// decoded order is kept
	if anim.Bone[0].Frame != 10 {
		t.Error("keyframes reordered")
	}

	m := anim.MorphChannels()["まばたき"]
	if m == nil || len(m.Frames) != 2 || m.Frames[0] != 0 || m.Weights[1] != 1 {
		t.Error("morph", m)
	}
}

func TestBezierNormalized(t *testing.T) {
	ax, ay, bx, by := BezierCurve{A: ControlPoint{20, 20}, B: ControlPoint{107, 127}}.Normalized()
	if ax != float32(20)/127 || ay != float32(20)/127 || bx != float32(107)/127 || by != 1 {
		t.Error(ax, ay, bx, by)
	}
}
