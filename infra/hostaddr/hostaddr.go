// Package hostaddr answers whether an address belongs to this host, so a
// misconfigured bind address can be reported before anything listens on it.
package hostaddr

import "net/netip"

// Assigned reports whether addr is configured on a local interface. The
// unspecified address always counts as assigned.
func Assigned(addr netip.Addr) (bool, error) {
	if !addr.IsValid() {
		return false, nil
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() {
		return true, nil
	}
	addrs, err := localAddrs()
	if err != nil {
		return false, err
	}
	for _, a := range addrs {
		if a.Unmap() == addr {
			return true, nil
		}
	}
	return false, nil
}
