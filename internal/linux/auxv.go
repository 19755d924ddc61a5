package linux

import "fmt"

// Auxiliary vector tags. The vector is a sequence of 64-bit (tag, value)
// pairs on the initial stack, terminated by AT_NULL.
const (
	AT_NULL          = 0
	AT_IGNORE        = 1
	AT_EXECFD        = 2
	AT_PHDR          = 3
	AT_PHENT         = 4
	AT_PHNUM         = 5
	AT_PAGESZ        = 6
	AT_BASE          = 7
	AT_FLAGS         = 8
	AT_ENTRY         = 9
	AT_NOTELF        = 10
	AT_UID           = 11
	AT_EUID          = 12
	AT_GID           = 13
	AT_EGID          = 14
	AT_PLATFORM      = 15
	AT_HWCAP         = 16
	AT_CLKTCK        = 17
	AT_SECURE        = 23
	AT_BASE_PLATFORM = 24
	AT_RANDOM        = 25
	AT_HWCAP2        = 26
	AT_EXECFN        = 31
)

// HwcapIMAFDC is the AT_HWCAP bitmask advertising the I, M, A, F, D and C
// RISC-V extensions (bit positions are the extension letters' alphabet
// indexes).
const HwcapIMAFDC = 0x112d

var auxTagNames = map[uint64]string{
	AT_NULL:     "AT_NULL",
	AT_PHDR:     "AT_PHDR",
	AT_PHENT:    "AT_PHENT",
	AT_PHNUM:    "AT_PHNUM",
	AT_PAGESZ:   "AT_PAGESZ",
	AT_BASE:     "AT_BASE",
	AT_FLAGS:    "AT_FLAGS",
	AT_ENTRY:    "AT_ENTRY",
	AT_UID:      "AT_UID",
	AT_EUID:     "AT_EUID",
	AT_GID:      "AT_GID",
	AT_EGID:     "AT_EGID",
	AT_PLATFORM: "AT_PLATFORM",
	AT_HWCAP:    "AT_HWCAP",
	AT_CLKTCK:   "AT_CLKTCK",
	AT_SECURE:   "AT_SECURE",
	AT_RANDOM:   "AT_RANDOM",
	AT_EXECFN:   "AT_EXECFN",
}

// AuxTagName names an auxiliary vector tag for diagnostics.
func AuxTagName(tag uint64) string {
	if name, ok := auxTagNames[tag]; ok {
		return name
	}
	return fmt.Sprintf("AT_%d", tag)
}
