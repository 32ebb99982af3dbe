package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseFreeze,
				Kind:     KindTypeMismatch,
				Path:     []string{"mesh", "sections", "indices"},
				GoType:   "[]uint16",
				TypeName: "IndexBuffer",
				Detail:   "element size mismatch",
			},
			contains: []string{"[freeze]", "type_mismatch", "mesh.sections.indices", "[]uint16", "IndexBuffer", "element size mismatch"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseThaw,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[thaw]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindInvalidData,
				Detail: "truncated patch list",
				Cause:  errors.New("unexpected EOF"),
			},
			contains: []string{"[decode]", "invalid_data", "truncated patch list", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseFreeze,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseFreeze,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseFreeze, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseThaw, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseFreeze, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseFreeze, Kind: KindTypeMismatch}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestError_Fatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindNotRegistered, true},
		{KindUnknownTypeHash, true},
		{KindUnsupportedWidth, true},
		{KindAbstractType, true},
		{KindNotABase, true},
		{KindInvalidData, false},
		{KindOutOfBounds, false},
		{KindMergeUnsafe, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &Error{Phase: PhasePatch, Kind: tt.kind}
			if err.Fatal() != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", err.Fatal(), tt.fatal)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseFreeze, KindTypeMismatch).
		Path("node", "next").
		GoType("*main.Node").
		TypeName("Node").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "struct", "interface").
		Build()

	if err.Phase != PhaseFreeze {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseFreeze)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "node" || err.Path[1] != "next" {
		t.Errorf("Path = %v, want [node next]", err.Path)
	}
	if err.GoType != "*main.Node" {
		t.Errorf("GoType = %v, want '*main.Node'", err.GoType)
	}
	if err.TypeName != "Node" {
		t.Errorf("TypeName = %v, want 'Node'", err.TypeName)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected struct, got interface" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseFreeze, []string{"field"}, "int", "Int32")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.GoType != "int" || err.TypeName != "Int32" {
			t.Errorf("GoType=%v TypeName=%v", err.GoType, err.TypeName)
		}
	})

	t.Run("NotRegistered", func(t *testing.T) {
		err := NotRegistered(PhaseFreeze, "main.Mesh")
		if err.Kind != KindNotRegistered {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotRegistered)
		}
		if !err.Fatal() {
			t.Error("NotRegistered should be fatal")
		}
	})

	t.Run("UnknownTypeHash", func(t *testing.T) {
		err := UnknownTypeHash(PhasePatch, 0xdeadbeef)
		if err.Kind != KindUnknownTypeHash {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownTypeHash)
		}
		if !strings.Contains(err.Detail, "deadbeef") {
			t.Errorf("Detail = %v, should contain hash", err.Detail)
		}
	})

	t.Run("UnsupportedWidth", func(t *testing.T) {
		err := UnsupportedWidth(PhaseFreeze, 2)
		if err.Kind != KindUnsupportedWidth {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupportedWidth)
		}
		if err.Value != uint32(2) {
			t.Errorf("Value = %v, want 2", err.Value)
		}
	})

	t.Run("AbstractType", func(t *testing.T) {
		err := AbstractType(PhaseFreeze, "Renderable")
		if err.Kind != KindAbstractType {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAbstractType)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhasePatch, []string{"vtable"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseFreeze, "reference cycles")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})
}
