// Package sandbox implements the verified execution environment (VEE): an
// isolated, resource-limited runner for planner-produced analysis scripts.
//
// Every run gets a fresh arena (a private working directory and a brand new
// OS-level execution context) that is destroyed when the run ends, so no
// interpreter or filesystem state can leak between runs. Scripts receive
// their inputs through a JSON file and publish findings by writing name to
// value pairs to a dedicated output file; stdout is captured for diagnostics
// only and is never treated as a result channel.
//
// Two runtimes are provided: ProcessRuntime executes the script in a child
// process with an allowlisted environment and kernel resource limits, and
// DockerRuntime executes it in a throwaway container with the network
// disabled and a hard memory cgroup limit.
package sandbox
