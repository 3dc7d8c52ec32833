package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmdev/internal/hostnet"
)

var netinfoCmd = &cobra.Command{
	Use:   "netinfo <network>",
	Short: "Show what the device model sees of a host network",
	Long: `Show how a host network or bridge resolves for interface and graphics
devices: whether the link exists, its IPv4 address (used as display listen
address), whether Open vSwitch backs it and the VLAN it carries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]
		inv := hostnet.NewInventory(log)

		exists, err := inv.Exists(name)
		if err != nil {
			return err
		}
		fmt.Printf("Network:   %s\n", name)
		if !exists {
			fmt.Println("Link:      not found")
			return nil
		}
		fmt.Println("Link:      present")

		ip, err := inv.NetworkIP(ctx, name)
		switch {
		case errors.Is(err, hostnet.ErrNoAddress):
			ip = "-"
		case err != nil:
			return err
		}
		fmt.Printf("Address:   %s\n", ip)

		ovs := hostnet.NewOVS(log)
		br, err := ovs.Bridge(ctx, name)
		if err != nil {
			return err
		}
		if br != nil && br.VirtualSwitch {
			fmt.Println("Switch:    openvswitch")
			vlan, tagged, err := ovs.NetworkVLAN(ctx, name)
			if err != nil {
				return err
			}
			printVLAN(vlan, tagged)
			return nil
		}

		fmt.Println("Switch:    linux bridge")
		vlan, tagged, err := inv.BridgeVLAN(ctx, name)
		if err != nil {
			return err
		}
		printVLAN(vlan, tagged)
		return nil
	},
}

func printVLAN(vlan int, tagged bool) {
	if !tagged {
		fmt.Println("VLAN:      untagged")
		return
	}
	fmt.Printf("VLAN:      %d\n", vlan)
}
