// Package scene holds the in-memory scene document the pipeline operates
// on: objects linked to mesh or armature data blocks, a library of data
// blocks with user reference counts, and animation actions. The model
// follows the document conventions of 3d authoring tools, so imported
// rigs and clips behave the way artists expect.
package scene

import (
	"fmt"
	"sort"
)

type ObjectType int

const (
	ObjectMesh ObjectType = iota
	ObjectArmature
)

func (t ObjectType) String() string {
	switch t {
	case ObjectMesh:
		return "MESH"
	case ObjectArmature:
		return "ARMATURE"
	}
	return "UNKNOWN"
}

type Object struct {
	Name string
	Type ObjectType

	// exactly one of these is set, matching Type
	Mesh     *Mesh
	Armature *Armature

	// active action, armature objects only
	Action *Action
}

type Image struct {
	Name  string
	Path  string
	users int
}

type Texture struct {
	Name  string
	Image *Image
	users int
}

type Material struct {
	Name     string
	Diffuse  [4]float32
	Textures []*Texture
	users    int
}

// Mesh is the geometry data block: triangulated, skinned against the
// bones of its armature by index.
type Mesh struct {
	Name      string
	Vertices  [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Indices   []uint32
	Joints    [][4]uint16
	Weights   [][4]float32
	Materials []*Material
	users     int
}

// Library is the per-scene data block storage. Blocks live here even when
// no object links them; PurgeOrphans drops the unreferenced ones.
type Library struct {
	Meshes    []*Mesh
	Armatures []*Armature
	Materials []*Material
	Textures  []*Texture
	Images    []*Image
	Actions   []*Action
}

type Scene struct {
	FPS     int
	Objects []*Object
	Lib     Library

	FrameStart   int
	FrameEnd     int
	FrameCurrent int
}

func NewScene(fps int) *Scene {
	return &Scene{FPS: fps, FrameStart: 1, FrameEnd: 250, FrameCurrent: 1}
}

// LinkObject adds an object and takes a user reference on its data block.
func (s *Scene) LinkObject(o *Object) {
	switch o.Type {
	case ObjectMesh:
		if o.Mesh != nil {
			o.Mesh.users++
		}
	case ObjectArmature:
		if o.Armature != nil {
			o.Armature.users++
		}
	}
	if o.Action != nil {
		o.Action.users++
	}
	s.Objects = append(s.Objects, o)
}

// UnlinkObject removes an object by name and releases its references.
func (s *Scene) UnlinkObject(name string) bool {
	for i, o := range s.Objects {
		if o.Name != name {
			continue
		}
		s.releaseObject(o)
		s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
		return true
	}
	return false
}

func (s *Scene) releaseObject(o *Object) {
	if o.Mesh != nil {
		o.Mesh.users--
	}
	if o.Armature != nil {
		o.Armature.users--
	}
	if o.Action != nil {
		o.Action.users--
	}
}

// SetAction swaps the active action of an armature object, adjusting user
// counts on both sides. action may be nil to detach.
func (s *Scene) SetAction(o *Object, action *Action) {
	if o.Action != nil {
		o.Action.users--
	}
	o.Action = action
	if action != nil {
		action.users++
	}
}

func (s *Scene) Object(name string) *Object {
	for _, o := range s.Objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (s *Scene) FirstArmature() *Object {
	for _, o := range s.Objects {
		if o.Type == ObjectArmature {
			return o
		}
	}
	return nil
}

func (s *Scene) MeshObjectNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, o := range s.Objects {
		if o.Type == ObjectMesh {
			names[o.Name] = struct{}{}
		}
	}
	return names
}

// ActionNames snapshots the action library. Import detection works by set
// difference over two snapshots.
func (s *Scene) ActionNames() map[string]struct{} {
	names := make(map[string]struct{}, len(s.Lib.Actions))
	for _, a := range s.Lib.Actions {
		names[a.Name] = struct{}{}
	}
	return names
}

// NewActionNames returns names present now but not in the before snapshot,
// sorted for a deterministic pick order.
func (s *Scene) NewActionNames(before map[string]struct{}) []string {
	var fresh []string
	for _, a := range s.Lib.Actions {
		if _, ok := before[a.Name]; !ok {
			fresh = append(fresh, a.Name)
		}
	}
	sort.Strings(fresh)
	return fresh
}

func (s *Scene) ActionByName(name string) *Action {
	for _, a := range s.Lib.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Reset deletes every object and purges orphaned data blocks, giving each
// batch item a clean document.
func (s *Scene) Reset() {
	for _, o := range s.Objects {
		s.releaseObject(o)
	}
	s.Objects = s.Objects[:0]
	s.PurgeOrphans()
}

// RemoveAllActions drops every action regardless of users. The batch
// converter runs this after a reset so set-difference detection starts
// from an empty action library.
func (s *Scene) RemoveAllActions() {
	s.Lib.Actions = s.Lib.Actions[:0]
	for _, o := range s.Objects {
		o.Action = nil
	}
}

// PurgeOrphans removes zero-reference blocks of the six tracked kinds.
// Dropping a material releases its textures, and a texture its image, so
// iterate until a pass removes nothing.
func (s *Scene) PurgeOrphans() {
	for {
		removed := 0

		keptMeshes := s.Lib.Meshes[:0]
		for _, m := range s.Lib.Meshes {
			if m.users > 0 {
				keptMeshes = append(keptMeshes, m)
			} else {
				for _, mat := range m.Materials {
					mat.users--
				}
				removed++
			}
		}
		s.Lib.Meshes = keptMeshes

		keptArmatures := s.Lib.Armatures[:0]
		for _, a := range s.Lib.Armatures {
			if a.users > 0 {
				keptArmatures = append(keptArmatures, a)
			} else {
				removed++
			}
		}
		s.Lib.Armatures = keptArmatures

		keptMaterials := s.Lib.Materials[:0]
		for _, m := range s.Lib.Materials {
			if m.users > 0 {
				keptMaterials = append(keptMaterials, m)
			} else {
				for _, t := range m.Textures {
					t.users--
				}
				removed++
			}
		}
		s.Lib.Materials = keptMaterials

		keptTextures := s.Lib.Textures[:0]
		for _, t := range s.Lib.Textures {
			if t.users > 0 {
				keptTextures = append(keptTextures, t)
			} else {
				if t.Image != nil {
					t.Image.users--
				}
				removed++
			}
		}
		s.Lib.Textures = keptTextures

		keptImages := s.Lib.Images[:0]
		for _, i := range s.Lib.Images {
			if i.users > 0 {
				keptImages = append(keptImages, i)
			} else {
				removed++
			}
		}
		s.Lib.Images = keptImages

		keptActions := s.Lib.Actions[:0]
		for _, a := range s.Lib.Actions {
			if a.users > 0 {
				keptActions = append(keptActions, a)
			} else {
				removed++
			}
		}
		s.Lib.Actions = keptActions

		if removed == 0 {
			return
		}
	}
}

// OrphanCount reports remaining zero-reference blocks, used to verify the
// reset postcondition.
func (s *Scene) OrphanCount() int {
	n := 0
	for _, m := range s.Lib.Meshes {
		if m.users <= 0 {
			n++
		}
	}
	for _, a := range s.Lib.Armatures {
		if a.users <= 0 {
			n++
		}
	}
	for _, m := range s.Lib.Materials {
		if m.users <= 0 {
			n++
		}
	}
	for _, t := range s.Lib.Textures {
		if t.users <= 0 {
			n++
		}
	}
	for _, i := range s.Lib.Images {
		if i.users <= 0 {
			n++
		}
	}
	for _, a := range s.Lib.Actions {
		if a.users <= 0 {
			n++
		}
	}
	return n
}

// AddMesh etc. register data blocks in the library with zero users; the
// reference appears when an object links them.

func (s *Scene) AddMesh(m *Mesh) *Mesh {
	s.Lib.Meshes = append(s.Lib.Meshes, m)
	return m
}

func (s *Scene) AddArmature(a *Armature) *Armature {
	s.Lib.Armatures = append(s.Lib.Armatures, a)
	return a
}

func (s *Scene) AddMaterial(m *Material) *Material {
	s.Lib.Materials = append(s.Lib.Materials, m)
	return m
}

func (s *Scene) AddTexture(t *Texture) *Texture {
	s.Lib.Textures = append(s.Lib.Textures, t)
	return t
}

func (s *Scene) AddImage(i *Image) *Image {
	s.Lib.Images = append(s.Lib.Images, i)
	return i
}

// Link helpers take a user reference on the target block.

func (m *Mesh) LinkMaterial(mat *Material) {
	m.Materials = append(m.Materials, mat)
	mat.users++
}

func (m *Material) LinkTexture(t *Texture) {
	m.Textures = append(m.Textures, t)
	t.users++
}

func (t *Texture) LinkImage(i *Image) {
	t.Image = i
	i.users++
}

func (s *Scene) AddAction(a *Action) *Action {
	s.Lib.Actions = append(s.Lib.Actions, a)
	return a
}

// UniqueObjectName suffixes a colliding name with .001, .002, ... so a
// second import of the same file keeps both copies addressable, and the
// duplicate-removal pass can tell them apart by name.
func (s *Scene) UniqueObjectName(name string) string {
	if s.Object(name) == nil {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", name, i)
		if s.Object(candidate) == nil {
			return candidate
		}
	}
}

func (s *Scene) UniqueActionName(name string) string {
	if s.ActionByName(name) == nil {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", name, i)
		if s.ActionByName(candidate) == nil {
			return candidate
		}
	}
}

// SetFrameRange mirrors assigning scene.frame_start/frame_end after a clip
// is attached.
func (s *Scene) SetFrameRange(start, end int) {
	s.FrameStart = start
	s.FrameEnd = end
	s.FrameCurrent = start
}
