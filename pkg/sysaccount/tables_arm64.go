//go:build arm64

package sysaccount

const arch = "aarch64"

// syscallNames is a representative subset of the AArch64 generic syscall
// table (include/uapi/asm-generic/unistd.h); numbers absent here fall back
// to their decimal string per the unknown-architecture boundary behavior.
var syscallNames = map[uint32]string{
	17:  "getcwd",
	34:  "mkdirat",
	35:  "unlinkat",
	48:  "faccessat",
	56:  "openat",
	57:  "close",
	59:  "pipe2",
	61:  "getdents64",
	63:  "read",
	64:  "write",
	65:  "readv",
	66:  "writev",
	78:  "readlinkat",
	79:  "newfstatat",
	80:  "fstat",
	93:  "exit",
	94:  "exit_group",
	101: "nanosleep",
	113: "clock_gettime",
	129: "kill",
	134: "rt_sigaction",
	135: "rt_sigprocmask",
	160: "uname",
	172: "getpid",
	173: "getppid",
	174: "getuid",
	198: "socket",
	199: "socketpair",
	200: "bind",
	201: "listen",
	202: "accept",
	203: "connect",
	206: "sendto",
	207: "recvfrom",
	211: "sendmsg",
	212: "recvmsg",
	214: "brk",
	220: "clone",
	221: "execve",
	222: "mmap",
	226: "mprotect",
	215: "munmap",
	261: "prlimit64",
	435: "clone3",
	437: "openat2",
}
