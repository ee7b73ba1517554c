package converter

import (
	"sort"

	"github.com/binzume/mmdloader/mmd"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// FrameRate is the playback rate of VMD keyframes.
const FrameRate = 30

func keysEquals(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeKeys writes sampler input times. Inputs need their bounds.
func writeKeys(doc *gltf.Document, frames []uint32) uint32 {
	keys := make([]float32, len(frames))
	for i, k := range frames {
		keys[i] = float32(k) / FrameRate
	}
	acc := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, keys)
	if len(keys) > 0 {
		doc.Accessors[acc].Min = []float32{keys[0]}
		doc.Accessors[acc].Max = []float32{keys[len(keys)-1]}
	}
	return acc
}

func addSampler(a *gltf.Animation, node, input, output uint32, path gltf.TRSProperty) {
	a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
		Input:         gltf.Index(input),
		Output:        gltf.Index(output),
		Interpolation: gltf.InterpolationLinear,
	})
	a.Channels = append(a.Channels, &gltf.Channel{
		Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
		Target: gltf.ChannelTarget{
			Node: gltf.Index(node),
			Path: path,
		},
	})
}

func addBoneChannels(doc *gltf.Document, a *gltf.Animation, joints *JointNodes, channels map[string]*mmd.BoneChannel) {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var prevFrames []uint32
	var prevKeysAcc uint32
	for _, name := range names {
		channel := channels[name]
		n, ok := joints.Nodes[name]
		if !ok || int(n) >= len(doc.Nodes) {
			continue
		}

		rotate := false
		rotations := make([][4]float32, len(channel.Rotations))
		for i, q := range channel.Rotations {
			r := [4]float32{-q.X, -q.Y, q.Z, q.W}
			if r != [4]float32{0, 0, 0, 1} {
				rotate = true
			}
			rotations[i] = r
		}

		// keyframe positions are offsets from the rest pose
		rest := doc.Nodes[n].Translation
		translate := false
		translations := make([][3]float32, len(channel.Positions))
		for i, p := range channel.Positions {
			if p != (mmd.Vector3{}) {
				translate = true
			}
			translations[i] = [3]float32{
				rest[0] + p.X*joints.Scale,
				rest[1] + p.Y*joints.Scale,
				rest[2] - p.Z*joints.Scale,
			}
		}
		if !rotate && !translate {
			continue
		}

		var keysAcc uint32
		if prevFrames != nil && keysEquals(channel.Frames, prevFrames) {
			keysAcc = prevKeysAcc
		} else {
			keysAcc = writeKeys(doc, channel.Frames)
			prevFrames = channel.Frames
			prevKeysAcc = keysAcc
		}
		if rotate {
			addSampler(a, n, keysAcc, modeler.WriteTangent(doc, rotations), gltf.TRSRotation)
		}
		if translate {
			addSampler(a, n, keysAcc, modeler.WritePosition(doc, translations), gltf.TRSTranslation)
		}
	}
}

type morphTarget struct {
	node, index, count int
}

func morphTargets(doc *gltf.Document) map[string]morphTarget {
	targets := map[string]morphTarget{}
	for i, n := range doc.Nodes {
		if n.Mesh == nil || int(*n.Mesh) >= len(doc.Meshes) {
			continue
		}
		extras, ok := doc.Meshes[*n.Mesh].Extras.(map[string]interface{})
		if !ok {
			continue
		}
		var names []string
		switch v := extras["targetNames"].(type) {
		case []string:
			names = v
		case []interface{}:
			// decoded from a file
			for _, s := range v {
				name, _ := s.(string)
				names = append(names, name)
			}
		}
		for ti, name := range names {
			if _, dup := targets[name]; !dup {
				targets[name] = morphTarget{node: i, index: ti, count: len(names)}
			}
		}
	}
	return targets
}

// sampleWeight evaluates a morph channel at frame, holding the end values.
func sampleWeight(m *mmd.MorphChannel, frame uint32) float32 {
	i := sort.Search(len(m.Frames), func(i int) bool { return m.Frames[i] >= frame })
	if i == len(m.Frames) {
		return m.Weights[len(m.Weights)-1]
	}
	if m.Frames[i] == frame || i == 0 {
		return m.Weights[i]
	}
	f0, f1 := m.Frames[i-1], m.Frames[i]
	t := float32(frame-f0) / float32(f1-f0)
	return m.Weights[i-1] + (m.Weights[i]-m.Weights[i-1])*t
}

func addMorphChannels(doc *gltf.Document, a *gltf.Animation, morphs map[string]*mmd.MorphChannel) {
	targets := morphTargets(doc)

	nodeChannels := map[int][]*mmd.MorphChannel{}
	for _, m := range morphs {
		t, exists := targets[m.Morph]
		if !exists || len(m.Frames) == 0 {
			continue
		}
		nodeChannels[t.node] = append(nodeChannels[t.node], m)
	}

	nodes := make([]int, 0, len(nodeChannels))
	for ni := range nodeChannels {
		nodes = append(nodes, ni)
	}
	sort.Ints(nodes)

	for _, ni := range nodes {
		mm := nodeChannels[ni]

		// one sampler drives every target of a node, so all channels share the union of their frames
		seen := map[uint32]bool{}
		var frames []uint32
		for _, m := range mm {
			for _, f := range m.Frames {
				if !seen[f] {
					seen[f] = true
					frames = append(frames, f)
				}
			}
		}
		sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })

		sampleSize := targets[mm[0].Morph].count
		weights := make([]float32, sampleSize*len(frames))
		for _, m := range mm {
			ti := targets[m.Morph].index
			for f, frame := range frames {
				weights[f*sampleSize+ti] = sampleWeight(m, frame)
			}
		}

		keysAcc := writeKeys(doc, frames)
		weightsAcc := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, weights)
		addSampler(a, uint32(ni), keysAcc, weightsAcc, gltf.TRSWeights)
	}
}

// AddAnimation converts anim to a glTF animation targeting the bone nodes in
// joints and the morph targets named in mesh extras. It returns nil when nothing
// in anim applies to doc.
func AddAnimation(doc *gltf.Document, anim *mmd.Animation, joints *JointNodes) *gltf.Animation {
	a := &gltf.Animation{Name: anim.Name}

	addBoneChannels(doc, a, joints, anim.BoneChannels())
	addMorphChannels(doc, a, anim.MorphChannels())

	if len(a.Channels) == 0 {
		return nil
	}
	doc.Animations = append(doc.Animations, a)
	return a
}
