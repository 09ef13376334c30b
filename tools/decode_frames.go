//go:build ignore

// decode_frames parses hex dumps of raw WebSocket traffic, one capture per
// line, and prints every frame found plus per-opcode totals. Lines may hold
// several back-to-back frames. Blank lines and lines starting with '#' are
// skipped; spaces inside a line are ignored.
//
//	go run tools/decode_frames.go capture.hex
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aprsair/aprsgate/internal/protocol"
)

type stats struct {
	lines    int
	frames   int
	failures int
	opcodes  map[string]int
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: decode_frames <file>")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	st := stats{opcodes: make(map[string]int)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<24)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		st.lines++
		decodeLine(n, strings.ReplaceAll(line, " ", ""), &st)
	}
	if err := sc.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Summary ===\n")
	fmt.Printf("Lines:    %d\n", st.lines)
	fmt.Printf("Frames:   %d\n", st.frames)
	fmt.Printf("Failures: %d\n", st.failures)
	names := make([]string, 0, len(st.opcodes))
	for name := range st.opcodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %d\n", name, st.opcodes[name])
	}
}

func decodeLine(n int, line string, st *stats) {
	buf, err := hex.DecodeString(line)
	if err != nil {
		st.failures++
		fmt.Printf("line %d: hex decode error: %v\n", n, err)
		return
	}

	for len(buf) > 0 {
		frame, used, err := protocol.ParseFrame(buf)
		if err != nil {
			st.failures++
			fmt.Printf("line %d: %v (%d bytes left)\n", n, err, len(buf))
			return
		}
		st.frames++
		st.opcodes[frame.OpcodeString()]++
		fmt.Printf("line %d: %s\n", n, frame)
		if frame.Opcode == protocol.OpcodeText {
			fmt.Printf("         %q\n", frame.Payload)
		}
		buf = buf[used:]
	}
}
