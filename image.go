package memimage

import (
	"reflect"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/memimage/errors"
)

// Image is an in-progress freeze: a growing set of sections plus the
// bookkeeping needed to flatten them into one relocatable buffer. Build
// one per artifact, write the roots, then Flatten.
//
// An Image is not safe for concurrent writers.
type Image struct {
	reg    *Registry
	params LayoutParams
	table  PointerTable

	sections []*Section
	objects  map[objectKey]*Section
	deps     map[uint64]uint64 // type name hash -> layout hash
}

// objectKey identifies one frozen live object. The descriptor is part of
// the key because a base subobject can share an address with its derived
// object.
type objectKey struct {
	ptr  unsafe.Pointer
	desc *TypeDescriptor
}

// ImageOption configures NewImage.
type ImageOption func(*Image)

// WithPointerTable attaches the table that resolves TableRef fields.
// Freezing a TableRef without one fails.
func WithPointerTable(t PointerTable) ImageOption {
	return func(img *Image) { img.table = t }
}

// NewImage starts an empty image targeting the given layout parameters.
func NewImage(reg *Registry, params LayoutParams, opts ...ImageOption) (*Image, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	img := &Image{
		reg:     reg,
		params:  params,
		objects: make(map[objectKey]*Section, 16),
		deps:    make(map[uint64]uint64, 16),
	}
	for _, o := range opts {
		o(img)
	}
	img.newSection() // section 0 holds the root object
	return img, nil
}

// Params returns the target layout parameters.
func (img *Image) Params() LayoutParams {
	return img.params
}

// Registry returns the registry the image freezes against.
func (img *Image) Registry() *Registry {
	return img.reg
}

// NumSections returns the current section count.
func (img *Image) NumSections() int {
	return len(img.sections)
}

func (img *Image) newSection() *Section {
	s := &Section{img: img, id: len(img.sections), align: 1}
	img.sections = append(img.sections, s)
	return s
}

// Root returns a writer positioned at the root section. The first object
// written here is the one Materialize recovers from the flattened buffer.
func (img *Image) Root() *Writer {
	return &Writer{img: img, sec: img.sections[0]}
}

// addDependency records that objects of type d were frozen, keyed by name
// hash with the layout hash under the image's parameters as the version.
func (img *Image) addDependency(d *TypeDescriptor) {
	if _, ok := img.deps[d.NameHash]; ok {
		return
	}
	img.deps[d.NameHash] = cachedLayoutHash(d, img.params)
}

func cachedLayoutHash(d *TypeDescriptor, p LayoutParams) uint64 {
	if v, ok := d.hashCache.Load(p); ok {
		return v.(uint64)
	}
	h := LayoutHash(d, p)
	d.hashCache.Store(p, h)
	return h
}

// FreezeObject writes *v as the image's root object. The type of T must be
// registered.
func FreezeObject[T any](img *Image, v *T) error {
	if v == nil {
		return errors.NilPointer(errors.PhaseFreeze, nil, reflect.TypeOf(v).String())
	}
	d, ok := img.reg.Lookup(reflect.TypeOf(*v))
	if !ok {
		return errors.NotRegistered(errors.PhaseFreeze, reflect.TypeOf(*v).String())
	}
	Logger().Debug("freezing root object",
		zap.String("type", d.Name),
		zap.Uint32("pointerWidth", img.params.PointerWidth))
	// Memoized so back references to the root close the cycle instead of
	// freezing a second copy.
	img.objects[objectKey{ptr: unsafe.Pointer(v), desc: d}] = img.sections[0]
	return img.Root().WriteObject(d, unsafe.Pointer(v))
}
