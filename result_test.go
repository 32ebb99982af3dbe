package memimage

import (
	"bytes"
	"testing"
	"unsafe"

	stderrors "errors"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/binary"
)

func frozenScene(t *testing.T, params LayoutParams) *Result {
	t.Helper()
	reg := NewRegistry()
	registerTestTypes(reg)

	d := &derivedObj{V: 1}
	s := sceneObj{P: NewPolyRef(d)}
	res, err := freezeRoot(reg, params, &s)
	require.NoError(t, err)
	return res
}

func TestArtifactRoundTrip(t *testing.T) {
	params := LayoutParams{PointerWidth: 4, Force64BitOffsets: true, MaxAlign: 8, WithEditorData: true}
	res := frozenScene(t, params)
	res.ReadOnly = true

	var buf bytes.Buffer
	n, err := res.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	got, err := ReadResult(&buf)
	require.NoError(t, err)
	require.Equal(t, res.Params, got.Params)
	require.Equal(t, res.ReadOnly, got.ReadOnly)
	require.Equal(t, res.Buffer, got.Buffer)
	require.Equal(t, res.Dependencies, got.Dependencies)
	require.Equal(t, res.VTables, got.VTables)
	require.Equal(t, res.Names, got.Names)
}

func TestArtifactBadInput(t *testing.T) {
	var e *errors.Error

	_, err := ReadResult(bytes.NewReader([]byte("QIMG\x01\x00\x00\x00")))
	require.Error(t, err)
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, errors.KindBadMagic, e.Kind)

	res := frozenScene(t, LayoutParams{PointerWidth: 8})
	var buf bytes.Buffer
	_, err = res.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.Bytes()
	raw[4] = 0x7f // version byte, LEB128 encoded

	_, err = ReadResult(bytes.NewReader(raw))
	require.Error(t, err)
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, errors.KindBadVersion, e.Kind)

	_, err = ReadResult(bytes.NewReader(raw[:8]))
	require.Error(t, err, "truncated input must not parse")
}

// Declared lengths in the artifact header are untrusted: a corrupt count
// must fail at end of input instead of committing the declared allocation.
func TestArtifactCorruptLengths(t *testing.T) {
	header := func() *binary.Writer {
		w := binary.NewWriter()
		w.WriteBytes([]byte("FIMG"))
		w.WriteU32(1) // version
		w.WriteU32(8) // pointer width
		w.Byte(0)     // flags
		w.WriteU32(0) // max align
		return w
	}

	huge := header()
	huge.WriteU32(1 << 31) // buffer length with nothing behind it
	_, err := ReadResult(bytes.NewReader(huge.Bytes()))
	require.Error(t, err)

	counts := header()
	counts.WriteU32(0)       // empty buffer
	counts.WriteU32(1 << 30) // vtable patch count with nothing behind it
	_, err = ReadResult(bytes.NewReader(counts.Bytes()))
	require.Error(t, err)
}

func TestValidateLayouts(t *testing.T) {
	params := LayoutParams{PointerWidth: 8}
	reg := NewRegistry()
	registerTestTypes(reg)

	h := holderObj{A: 1}
	h.B = NewRef(&childObj{X: 2})
	res, err := freezeRoot(reg, params, &h)
	require.NoError(t, err)
	require.NotEmpty(t, res.Dependencies)

	require.True(t, res.ValidateLayouts(reg))

	fresh := NewRegistry()
	registerTestTypes(fresh)
	require.True(t, res.ValidateLayouts(fresh),
		"identical registrations in another process must validate")

	require.False(t, res.ValidateLayouts(NewRegistry()),
		"missing types mean a stale artifact")

	// Same names, different shape: the cache must miss.
	type grownChild struct {
		X int32
		Y int32
	}
	changed := NewRegistry()
	changed.MustRegister(Describe[grownChild]("test.child").
		Field("x", KindInt32, unsafe.Offsetof(grownChild{}.X)).
		Field("y", KindInt32, unsafe.Offsetof(grownChild{}.Y)))
	changed.MustRegister(Describe[holderObj]("test.holder").
		Field("a", KindInt32, unsafe.Offsetof(holderObj{}.A)).
		Ref("b", mustLookup(t, changed, "test.child"), unsafe.Offsetof(holderObj{}.B)))
	require.False(t, res.ValidateLayouts(changed))
}

func mustLookup(t *testing.T, reg *Registry, name string) *TypeDescriptor {
	t.Helper()
	d, ok := reg.LookupName(name)
	require.True(t, ok)
	return d
}

func TestApplyUnknownTypeHash(t *testing.T) {
	res := frozenScene(t, LayoutParams{PointerWidth: 8})

	err := res.Apply(NewRegistry())
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, errors.KindUnknownTypeHash, e.Kind)
	require.True(t, e.Fatal())
}
