package layout

import "testing"

func TestAlignTo(t *testing.T) {
	tests := []struct {
		offset, align, want uint32
	}{
		{0, 1, 0},
		{0, 8, 0},
		{1, 1, 1},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{9, 8, 16},
		{3, 0, 3},
	}

	for _, tt := range tests {
		if got := AlignTo(tt.offset, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.offset, tt.align, got, tt.want)
		}
	}
}

func TestCalcEmpty(t *testing.T) {
	info := Calc(nil, 0)
	if info.Size != 0 || info.Align != 1 {
		t.Errorf("empty: got size=%d align=%d, want 0/1", info.Size, info.Align)
	}
}

func TestCalcPacking(t *testing.T) {
	tests := []struct {
		name     string
		shapes   []Shape
		maxAlign uint32
		size     uint32
		align    uint32
		offsets  []uint32
	}{
		{
			name:    "single_u32",
			shapes:  []Shape{{Size: 4, Align: 4}},
			size:    4,
			align:   4,
			offsets: []uint32{0},
		},
		{
			name:    "u8_then_u32",
			shapes:  []Shape{{Size: 1, Align: 1}, {Size: 4, Align: 4}},
			size:    8,
			align:   4,
			offsets: []uint32{0, 4},
		},
		{
			name:    "u32_then_u8_tail_padding",
			shapes:  []Shape{{Size: 4, Align: 4}, {Size: 1, Align: 1}},
			size:    8,
			align:   4,
			offsets: []uint32{0, 4},
		},
		{
			name:    "u8_u16_u64",
			shapes:  []Shape{{Size: 1, Align: 1}, {Size: 2, Align: 2}, {Size: 8, Align: 8}},
			size:    16,
			align:   8,
			offsets: []uint32{0, 2, 8},
		},
		{
			name:     "max_align_caps_u64",
			shapes:   []Shape{{Size: 1, Align: 1}, {Size: 8, Align: 8}},
			maxAlign: 4,
			size:     12,
			align:    4,
			offsets:  []uint32{0, 4},
		},
		{
			name:    "array_arity",
			shapes:  []Shape{{Size: 4, Align: 4, Arity: 3}, {Size: 1, Align: 1}},
			size:    16,
			align:   4,
			offsets: []uint32{0, 12},
		},
		{
			name:    "zero_arity_treated_as_one",
			shapes:  []Shape{{Size: 2, Align: 2, Arity: 0}},
			size:    2,
			align:   2,
			offsets: []uint32{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Calc(tt.shapes, tt.maxAlign)
			if info.Size != tt.size {
				t.Errorf("size: got %d, want %d", info.Size, tt.size)
			}
			if info.Align != tt.align {
				t.Errorf("align: got %d, want %d", info.Align, tt.align)
			}
			for i, want := range tt.offsets {
				if info.FieldOffsets[i] != want {
					t.Errorf("offset[%d]: got %d, want %d", i, info.FieldOffsets[i], want)
				}
			}
		})
	}
}
