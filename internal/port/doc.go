// Package port implements host port scanning and allocation for secureqr.
//
// The Scanner asks the OS directly whether a port is free by binding it
// with net.Listen. The Allocator builds on the Scanner to pick the host
// port a container instance publishes:
//
//  1. the requested port (by default the container port, 5000), if free
//  2. otherwise the next free port within a small window above it
//  3. otherwise the first free port in the IANA dynamic range (49152-65535)
//
// Ports recorded on other managed containers are treated as taken even when
// those containers are stopped, so restarting one never collides with a
// sibling instance.
package port
