package main

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/spf13/cobra"

	"wgserv"
	"wgserv/cmd/wgservd/ui"
	"wgserv/infra/hostaddr"
	"wgserv/internal/clock"
	"wgserv/internal/supervisor"
	"wgserv/platform"
)

func checkCmd() *cobra.Command {
	var (
		configPath string
		checkClock bool
		ntpServer  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file and show what it will do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(configPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.ErrorMsg("%v", err))
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summary(cfg))
			for _, msg := range preflightWarnings(cfg, hostaddr.Assigned) {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			if checkClock {
				c := &clock.Checker{Server: ntpServer}
				fmt.Fprintln(cmd.OutOrStdout(), clockLine(c.Check(cmd.Context())))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", platform.DefaultConfigPath, "Configuration file")
	cmd.Flags().BoolVar(&checkClock, "clock", false, "Compare the host clock against an NTP server")
	cmd.Flags().StringVar(&ntpServer, "ntp-server", clock.DefaultServer, "NTP server used by --clock")
	return cmd
}

func clockLine(st clock.Status) string {
	switch st.Phase {
	case clock.PhaseHealthy:
		return ui.SuccessMsg("clock offset %s", st.Offset)
	case clock.PhaseUnhealthyOffset:
		return ui.WarnMsg("clock offset %s; handshakes may be rejected after a restart", st.Offset)
	default:
		return ui.WarnMsg("clock check failed: %s", st.Error)
	}
}

func summary(cfg wgserv.Config) string {
	tunnel := supervisor.DeriveTunnel(cfg)
	relay := supervisor.DeriveRelay(cfg)

	keepalive := "off"
	if cfg.KeepaliveInterval > 0 {
		keepalive = strconv.Itoa(int(cfg.KeepaliveInterval)) + "s"
	}

	out := ui.SuccessMsg("configuration is valid") + "\n\n"
	out += ui.KeyValues("  ",
		ui.KV("public key", ui.Accent(cfg.PublicKey().String())),
		ui.KV("peer key", cfg.PeerKey.String()),
		ui.KV("peer endpoint", ui.OrNone(addrString(cfg.PeerEndpoint.IsValid(), cfg.PeerEndpoint.String()))),
		ui.KV("keepalive", keepalive),
		ui.KV("relay listen", relay.Listen[0].String()),
		ui.KV("tunnel bind", tunnel.Bind.String()),
		ui.KV("dns", ui.OrNone(addrString(cfg.DNSAddr.IsValid(), cfg.DNSAddr.String()))),
		ui.KV("pingable", ui.OrNone(addrString(cfg.Pingable.IsValid(), cfg.Pingable.String()))),
		ui.KV("mtu", strconv.Itoa(cfg.MTU)),
	)

	var rows [][]string
	for _, f := range cfg.IncomingTCP {
		rows = append(rows, forwardRow("tcp", f))
	}
	for _, f := range cfg.IncomingUDP {
		rows = append(rows, forwardRow("udp", f))
	}
	if len(rows) > 0 {
		out += "\n" + ui.Table([]string{"PROTO", "HOST", "SRC", "DST"}, rows) + "\n"
	}
	return out
}

func forwardRow(proto string, f wgserv.PortForward) []string {
	src := "-"
	if f.Src.IsValid() {
		src = f.Src.String()
	}
	return []string{proto, f.Host.String(), src, f.Dst.String()}
}

func addrString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

// preflightWarnings reports addresses the relay must own locally but that
// assigned says are not on this host. The bind address is where the relay
// listens; a set peer endpoint is where its UDP sockets bind.
func preflightWarnings(cfg wgserv.Config, assigned func(netip.Addr) (bool, error)) []string {
	var out []string
	if msg := localWarning(assigned, cfg.BindIPPort.Addr(), "bind address %s is not assigned to any local interface; the relay cannot listen"); msg != "" {
		out = append(out, msg)
	}
	if cfg.PeerEndpoint.IsValid() {
		if msg := localWarning(assigned, cfg.PeerEndpoint.Addr(), "peer endpoint %s is not a local address; relay connections will fail to open their UDP socket"); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

func localWarning(assigned func(netip.Addr) (bool, error), addr netip.Addr, format string) string {
	ok, err := assigned(addr)
	if err != nil {
		return ui.WarnMsg("could not list host addresses: %v", err)
	}
	if !ok {
		return ui.WarnMsg(format, addr)
	}
	return ""
}
