package hostcap

// Capabilities is a once-resolved snapshot of everything the host offers.
// Resolving up front keeps spec assembly a pure function of its inputs,
// which is what the tests rely on.
type Capabilities struct {
	Platform Platform
	UID      int
	GID      int

	IdentityFiles bool // /etc/passwd and /etc/group are mountable

	SSHAgent       string // "" when absent
	RuntimeSocket  string // first existing runtime socket, "" when absent
	RuntimeSockGID int    // owning GID of RuntimeSocket, -1 when unknown

	Display    Display
	HasDisplay bool

	DBus            string
	DBusUnsupported string // non-empty when the platform rules it out

	GPUDevices  []string
	RenderGroup int // -1 when unknown
	HasGPU      bool

	Audio []AudioSocket
}

// Resolve probes the host once and returns the capability snapshot.
func Resolve() Capabilities {
	caps := Capabilities{
		Platform:       Classify(),
		RuntimeSockGID: -1,
		RenderGroup:    -1,
	}
	caps.UID, caps.GID = Identity()
	caps.IdentityFiles = caps.Platform.IsLinux() && IdentityFilesPresent()

	if sock, ok := SSHAgentSocket(); ok {
		caps.SSHAgent = sock
	}
	if sock, ok := FirstRuntimeSocket(false); ok {
		caps.RuntimeSocket = sock
		if gid, found := FileGroup(sock); found {
			caps.RuntimeSockGID = gid
		}
	}
	if d, ok := DisplaySocket(); ok {
		caps.Display = d
		caps.HasDisplay = true
	}
	if path, reason, ok := DBusSocket(); ok {
		caps.DBus = path
	} else {
		caps.DBusUnsupported = reason
	}
	if devices, gid, ok := GPUDevices(); ok {
		caps.GPUDevices = devices
		caps.RenderGroup = gid
		caps.HasGPU = true
	}
	caps.Audio = AudioSockets()
	return caps
}
