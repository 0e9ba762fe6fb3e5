/*
Package container wraps a containerd client down to the two queries the
observation pipeline needs: container ID to task PID, and task PID to the
inode of its pid_for_children namespace. It does not start, stop, or
otherwise manage container lifecycle — that belongs to the orchestrator,
not to a passive observer.
*/
package container
