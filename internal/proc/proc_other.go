//go:build !unix

package proc

// Alive reports whether a process with the given pid exists. Without a cheap
// probe on this platform we assume a well-formed pid is alive; the staleness
// check then only fires for missing or malformed pid files.
func Alive(pid int) bool {
	return pid > 0
}
