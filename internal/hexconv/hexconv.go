package hexconv

// halfbyte contains the value of a hex digit increased by one, so zero marks a non-hex char.
var halfbyte = [256]byte{
	'0': 0x1, '1': 0x2, '2': 0x3, '3': 0x4, '4': 0x5,
	'5': 0x6, '6': 0x7, '7': 0x8, '8': 0x9, '9': 0xa,
	'a': 0xb, 'b': 0xc, 'c': 0xd, 'd': 0xe, 'e': 0xf, 'f': 0x10,
	'A': 0xb, 'B': 0xc, 'C': 0xd, 'D': 0xe, 'E': 0xf, 'F': 0x10,
}

// Parse returns the value of a hex digit and whether char is a hex digit at all.
func Parse(char byte) (value byte, ok bool) {
	v := halfbyte[char]
	return v - 1, v != 0
}
