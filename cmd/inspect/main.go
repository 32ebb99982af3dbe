package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/memimage"
)

func main() {
	var (
		imageFile   = flag.String("image", "", "Path to frozen image artifact")
		summary     = flag.Bool("summary", false, "Print the header summary and exit")
		hexDump     = flag.Bool("hex", false, "Hex dump the frozen buffer")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *imageFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -image <file.fimg> [-summary] [-hex]")
		fmt.Fprintln(os.Stderr, "       inspect -image <file.fimg> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*imageFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := inspect(*imageFile, *summary, *hexDump); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(path string, summaryOnly, hexDump bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	res, err := memimage.ReadResult(f)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Printf("Artifact: %s\n", path)
	fmt.Printf("Buffer: %d bytes\n", len(res.Buffer))
	fmt.Printf("Layout: %s\n", describeParams(res.Params, res.ReadOnly))
	fmt.Printf("Dependencies: %d\n", len(res.Dependencies))
	fmt.Printf("VTable patches: %d\n", len(res.VTables))
	fmt.Printf("Name patches: %d\n", len(res.Names))

	if summaryOnly {
		return nil
	}

	if len(res.Dependencies) > 0 {
		fmt.Printf("\nDependencies:\n")
		for _, dep := range res.Dependencies {
			fmt.Printf("  %016x  layout %016x\n", dep.NameHash, dep.LayoutHash)
		}
	}

	if len(res.VTables) > 0 {
		fmt.Printf("\nVTable patches:\n")
		for _, vp := range res.VTables {
			fmt.Printf("  type %016x slot %d: %d word(s) at %v\n",
				vp.TypeNameHash, vp.SlotOffset, len(vp.Offsets), vp.Offsets)
		}
	}

	if len(res.Names) > 0 {
		fmt.Printf("\nName patches:\n")
		for _, np := range res.Names {
			fmt.Printf("  %-24q %d cell(s) at %v\n", np.Name, len(np.Offsets), np.Offsets)
		}
	}

	if hexDump {
		fmt.Printf("\nBuffer:\n%s", formatHex(res.Buffer, 0, len(res.Buffer)))
	}
	return nil
}

func describeParams(p memimage.LayoutParams, readOnly bool) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d-bit pointers", p.PointerWidth*8))
	if p.Force64BitOffsets {
		parts = append(parts, "64-bit offsets")
	}
	if p.MaxAlign != 0 {
		parts = append(parts, fmt.Sprintf("align<=%d", p.MaxAlign))
	}
	if p.WithEditorData {
		parts = append(parts, "editor data")
	}
	if p.WithOptionalData {
		parts = append(parts, "optional data")
	}
	if readOnly {
		parts = append(parts, "read-only")
	}
	return strings.Join(parts, ", ")
}

func formatHex(buf []byte, from, to int) string {
	var b strings.Builder
	if from < 0 {
		from = 0
	}
	if to > len(buf) {
		to = len(buf)
	}
	for row := from &^ 15; row < to; row += 16 {
		fmt.Fprintf(&b, "%08x  ", row)
		for i := 0; i < 16; i++ {
			if row+i < len(buf) && row+i >= from {
				fmt.Fprintf(&b, "%02x ", buf[row+i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for i := 0; i < 16 && row+i < len(buf); i++ {
			c := buf[row+i]
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			b.WriteByte(c)
		}
		b.WriteString("|\n")
	}
	return b.String()
}
