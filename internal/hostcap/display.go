package hostcap

import (
	"os"
	"path/filepath"
	"strings"
)

// DisplayKind discriminates display socket flavors.
type DisplayKind string

const (
	DisplayWayland DisplayKind = "wayland"
	DisplayX11     DisplayKind = "x11"
)

// Display describes a host display server socket.
type Display struct {
	Kind   DisplayKind
	Socket string
	// Authority is the X11 authority file, when one is advertised.
	Authority string
	// WaylandDisplay is the value of WAYLAND_DISPLAY backing a Wayland
	// socket, forwarded into the sandbox so clients find it.
	WaylandDisplay string
	// XDisplay is the value of DISPLAY backing an X11 socket.
	XDisplay string
}

// DisplaySocket locates a display server socket: Wayland first, then X11
// with its authority file, then the WSLg fallback locations.
func DisplaySocket() (Display, bool) {
	if !Classify().IsLinux() {
		return Display{}, false
	}

	wayland := os.Getenv("WAYLAND_DISPLAY")
	xdg := os.Getenv("XDG_RUNTIME_DIR")
	if wayland != "" && xdg != "" {
		sock := filepath.Join(xdg, wayland)
		if _, err := os.Stat(sock); err == nil {
			return Display{Kind: DisplayWayland, Socket: sock, WaylandDisplay: wayland}, true
		}
	}

	if xDisplay := os.Getenv("DISPLAY"); xDisplay != "" {
		const x11Dir = "/tmp/.X11-unix"
		if _, err := os.Stat(x11Dir); err == nil {
			d := Display{Kind: DisplayX11, Socket: x11Dir, XDisplay: xDisplay}
			if auth := os.Getenv("XAUTHORITY"); auth != "" {
				if _, err := os.Stat(auth); err == nil {
					d.Authority = auth
				}
			}
			return d, true
		}
	}

	// WSLg exposes its own runtime dir when the session env is missing.
	if Classify() == WSL2 {
		if sock := "/mnt/wslg/runtime-dir/wayland-0"; exists(sock) {
			return Display{Kind: DisplayWayland, Socket: sock, WaylandDisplay: "wayland-0"}, true
		}
		if dir := "/mnt/wslg/.X11-unix"; exists(dir) {
			return Display{Kind: DisplayX11, Socket: dir, XDisplay: ":0"}, true
		}
	}

	return Display{}, false
}

// DBusSocket locates the session bus socket. Session D-Bus is not usable
// under WSL2; that case is reported as an explicit unsupported reason so
// the caller can warn once instead of probing silently.
func DBusSocket() (path string, unsupported string, ok bool) {
	if Classify() == WSL2 {
		return "", "session D-Bus is not available under WSL2", false
	}
	if !Classify().IsLinux() {
		return "", "", false
	}

	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		for _, part := range strings.Split(addr, ";") {
			if strings.HasPrefix(part, "unix:path=") {
				p := strings.TrimPrefix(part, "unix:path=")
				if i := strings.IndexByte(p, ','); i >= 0 {
					p = p[:i]
				}
				if exists(p) {
					return p, "", true
				}
			}
		}
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		if p := filepath.Join(xdg, "bus"); exists(p) {
			return p, "", true
		}
	}
	return "", "", false
}

// GPUDevices returns DRI render nodes and the owning GID of the first node,
// used as a supplementary group so the sandbox user can open it.
func GPUDevices() (devices []string, renderGroup int, ok bool) {
	if !Classify().IsLinux() {
		return nil, 0, false
	}
	matches, _ := filepath.Glob("/dev/dri/renderD*")
	if len(matches) == 0 {
		return nil, 0, false
	}
	renderGroup = -1
	if gid, found := FileGroup(matches[0]); found {
		renderGroup = gid
	}
	return matches, renderGroup, true
}

// AudioKind discriminates audio socket flavors.
type AudioKind string

const (
	AudioPipeWire      AudioKind = "pipewire"
	AudioPipeWirePulse AudioKind = "pipewire-pulse"
	AudioPulse         AudioKind = "pulseaudio"
)

// AudioSocket is a host audio server socket.
type AudioSocket struct {
	Kind AudioKind
	Path string
}

// AudioSockets returns every audio socket present on the host: PipeWire
// native, PipeWire's PulseAudio shim (shares the path a standalone
// PulseAudio would use), and the WSLg fallback.
func AudioSockets() []AudioSocket {
	if !Classify().IsLinux() {
		return nil
	}
	var socks []AudioSocket
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		if p := filepath.Join(xdg, "pipewire-0"); exists(p) {
			socks = append(socks, AudioSocket{Kind: AudioPipeWire, Path: p})
		}
		if p := filepath.Join(xdg, "pulse", "native"); exists(p) {
			socks = append(socks, AudioSocket{Kind: AudioPipeWirePulse, Path: p})
		}
	}
	if len(socks) == 0 && Classify() == WSL2 {
		if p := "/mnt/wslg/runtime-dir/pulse/native"; exists(p) {
			socks = append(socks, AudioSocket{Kind: AudioPulse, Path: p})
		}
	}
	return socks
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
