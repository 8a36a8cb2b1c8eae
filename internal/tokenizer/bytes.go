package tokenizer

import "sync"

// byteTable is the reversible byte <-> rune mapping used by byte-level BPE.
// Printable ASCII and Latin-1 bytes map to themselves; the remaining 68 bytes
// map to U+0100 onward in byte order so no symbol is whitespace or a control
// character.
type byteTable struct {
	enc [256]rune
	dec map[rune]byte
}

var byteTableOnce = sync.OnceValue(buildByteTable)

func buildByteTable() *byteTable {
	var keep [256]bool
	for b := '!'; b <= '~'; b++ {
		keep[b] = true
	}
	for b := '¡'; b <= '¬'; b++ {
		keep[b] = true
	}
	for b := '®'; b <= 'ÿ'; b++ {
		keep[b] = true
	}

	t := &byteTable{dec: make(map[rune]byte, 256)}
	n := 0
	for b := range 256 {
		r := rune(b)
		if !keep[b] {
			r = rune(256 + n)
			n++
		}
		t.enc[b] = r
		t.dec[r] = byte(b)
	}
	return t
}

// bytesToUnicode returns the shared byte table. Repeated calls return the
// same value.
func bytesToUnicode() *byteTable {
	return byteTableOnce()
}

// ByteSymbol returns the printable rune that stands for byte b.
func ByteSymbol(b byte) rune {
	return bytesToUnicode().enc[b]
}
