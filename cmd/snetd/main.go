// snetd brings the static network stack up on a real interface: pcap link
// driver, ARP, IPv4, ICMP echo, TCP and the SSH transport server.
package main

import (
	"crypto/subtle"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"staticnet/pkg/arp"
	"staticnet/pkg/config"
	"staticnet/pkg/ethernet"
	"staticnet/pkg/icmp"
	"staticnet/pkg/ipstack"
	"staticnet/pkg/sshd"
)

// staticAuthenticator grants exactly one configured credential pair
type staticAuthenticator struct {
	user     string
	password string
}

func (a *staticAuthenticator) CheckPassword(username, password []byte) bool {
	u := subtle.ConstantTimeCompare(username, []byte(a.user))
	p := subtle.ConstantTimeCompare(password, []byte(a.password))
	return a.user != "" && u&p == 1
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "snetd",
		Short: "static heap-free network stack daemon",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "bring the stack up on the configured interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	up.Flags().StringVarP(&configPath, "config", "c", "snetd.yaml", "path to config file")

	root.AddCommand(up)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	driver, err := ethernet.InitPcapDriver(cfg.Interface, cfg.MAC)
	if err != nil {
		return err
	}
	defer driver.Close()

	arpCache := arp.InitCache()
	arpProto := arp.InitProtocol(driver, cfg.MAC, cfg.IP.Address, arpCache)
	ipv4 := ipstack.InitIPStack(driver, &cfg.IP, arpCache)
	icmp.InitProtocol(ipv4)
	server := sshd.InitServer(ipv4, &staticAuthenticator{
		user:     cfg.SSHUser,
		password: cfg.SSHPassword,
	})

	driver.RegisterHandler(ethernet.ETHERTYPE_ARP, arpProto.OnRxFrame)
	driver.RegisterHandler(ethernet.ETHERTYPE_IPV4, ipv4.OnRxPacket)

	// Everything runs on this one goroutine: frame dispatch and the 10 Hz
	// aging tick interleave, never overlap.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	log.WithField("interface", cfg.Interface).Info("stack running")
	for {
		driver.Poll()
		select {
		case <-tick.C:
			server.TCP().OnAgingTick10x()
		default:
		}
	}
}
