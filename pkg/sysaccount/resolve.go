package sysaccount

import "strconv"

// resolveName translates a syscall number to its name for the running
// architecture's table; unresolved numbers pass through as their decimal
// string, never as an error — name resolution must not block aggregation.
func resolveName(number uint32) (name string, resolved bool) {
	if n, ok := syscallNames[number]; ok {
		return n, true
	}
	return strconv.FormatUint(uint64(number), 10), false
}
