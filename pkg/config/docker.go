package config

import (
	"os"
	"strings"
	"sync"
)

// hostGateway is the name container runtimes give the machine hosting the
// container.
const hostGateway = "host.docker.internal"

// containerMarkers are files the Docker and Podman runtimes create inside
// every container.
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

var (
	inContainerOnce sync.Once
	inContainer     bool
)

// InContainer reports whether the engine runs inside a container. The
// result is computed once.
func InContainer() bool {
	inContainerOnce.Do(func() {
		inContainer = detectContainer(containerMarkers)
	})
	return inContainer
}

func detectContainer(markers []string) bool {
	for _, path := range markers {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// ResolveServiceHost returns the host to dial for a backing service such as
// the Postgres datastore or the Redis schema cache. Inside a container a
// loopback host refers to the container itself, so it is rewritten to the
// host gateway.
func ResolveServiceHost(host string) string {
	return resolveServiceHost(host, InContainer())
}

func resolveServiceHost(host string, containerized bool) string {
	if !containerized || !isLoopback(host) {
		return host
	}
	return hostGateway
}

func isLoopback(host string) bool {
	switch strings.ToLower(strings.Trim(host, "[]")) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
