//go:build amd64

package sysaccount

// arch is reported on every SyscallDoc so the collector can pick the right
// interpretation of syscall_number if it ever needs to re-derive a name.
const arch = "x86_64"

// syscallNames is a representative subset of the x86_64 syscall table
// (arch/x86/entry/syscalls/syscall_64.tbl); numbers absent here fall back
// to their decimal string per the unknown-architecture boundary behavior.
var syscallNames = map[uint32]string{
	0:   "read",
	1:   "write",
	2:   "open",
	3:   "close",
	4:   "stat",
	5:   "fstat",
	9:   "mmap",
	10:  "mprotect",
	11:  "munmap",
	12:  "brk",
	13:  "rt_sigaction",
	14:  "rt_sigprocmask",
	16:  "ioctl",
	21:  "access",
	22:  "pipe",
	23:  "select",
	32:  "dup",
	33:  "dup2",
	39:  "getpid",
	41:  "socket",
	42:  "connect",
	43:  "accept",
	44:  "sendto",
	45:  "recvfrom",
	46:  "sendmsg",
	47:  "recvmsg",
	48:  "shutdown",
	49:  "bind",
	50:  "listen",
	56:  "clone",
	57:  "fork",
	59:  "execve",
	60:  "exit",
	61:  "wait4",
	62:  "kill",
	72:  "fcntl",
	79:  "getcwd",
	80:  "chdir",
	83:  "mkdir",
	84:  "rmdir",
	85:  "creat",
	87:  "unlink",
	89:  "readlink",
	101: "ptrace",
	102: "getuid",
	110: "getppid",
	157: "prctl",
	231: "exit_group",
	257: "openat",
	262: "newfstatat",
	435: "clone3",
	437: "openat2",
}
