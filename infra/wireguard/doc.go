// Package wireguard runs the userspace WireGuard side of a server instance.
//
// The engine terminates a single peer with wireguard-go on top of gVisor's
// netstack, so no TUN device or privileges are needed. Inside the tunnel it
// answers DNS with the host resolver, answers ICMP echo on the pingable
// address, and exposes host TCP and UDP sockets to the peer through port
// forwards.
package wireguard
