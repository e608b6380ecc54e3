package runner

// nsenterArgs enters every namespace of the host's PID 1 so a command run
// from inside the engine container acts on the real host (its mount table,
// its /etc/fstab).
var nsenterArgs = []string{"nsenter", "-t", "1", "-m", "-u", "-i", "-n", "--"}

// HostCommand builds the argv that runs command in the host namespaces via
// a throwaway privileged container:
//
//	docker run --rm --privileged --pid=host <image> nsenter -t 1 -m -u -i -n -- <command...>
func HostCommand(dockerBin, image string, command ...string) []string {
	argv := make([]string, 0, 6+len(nsenterArgs)+len(command))
	argv = append(argv, dockerBin, "run", "--rm", "--privileged", "--pid=host", image)
	argv = append(argv, nsenterArgs...)
	argv = append(argv, command...)
	return argv
}

// VolumeCommand builds the argv that runs command in a throwaway container
// with hostPath bind-mounted at the same path:
//
//	docker run --rm -v <hostPath>:<hostPath> <image> <command...>
func VolumeCommand(dockerBin, image, hostPath string, command ...string) []string {
	argv := make([]string, 0, 6+len(command))
	argv = append(argv, dockerBin, "run", "--rm", "-v", hostPath+":"+hostPath, image)
	argv = append(argv, command...)
	return argv
}
