package plugin

import (
	"net"
	"net/url"
	"strings"
)

// Type represents the functional category of a plugin.
type Type string

// TypeAction plugins contribute agent actions invoked from chat messages.
const TypeAction Type = "action"

// Capability expresses optional features a plugin may request access to.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// Valid reports whether the capability is one of the known values.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityFilesystem, CapabilityNetwork, CapabilityExecution:
		return true
	default:
		return false
	}
}

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Category     Type
	Capabilities []Capability
	// Endpoints lists the upstream URLs or hosts the plugin dials; checked against AllowedHosts.
	Endpoints []string
	// Actions names the agent actions the plugin contributes.
	Actions []string
}

// Hosts returns the lower-cased host names of the declared endpoints.
func (i Info) Hosts() []string {
	hosts := make([]string, 0, len(i.Endpoints))
	for _, endpoint := range i.Endpoints {
		if host := hostOf(endpoint); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func hostOf(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(endpoint)
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)
