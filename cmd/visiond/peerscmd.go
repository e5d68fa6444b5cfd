package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/vision-project/vision-node/internal/config"
	"github.com/vision-project/vision-node/p2p/peerstore"
)

var peersCommand = &cli.Command{
	Name:  "peers",
	Usage: "list every peer recorded in this node's Peer Store",
	Flags: []cli.Flag{dataDirFlag, staticConfigFlag, jsonFlag},
	Action: func(c *cli.Context) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return configErr(err)
		}
		cfg.DataDir = c.String(dataDirFlag.Name)
		cfg.Static, err = config.LoadStaticConfig(c.String(staticConfigFlag.Name))
		if err != nil {
			return configErr(err)
		}

		book, err := peerstore.Open(cfg.DataDir, peerbookScope(cfg))
		if err != nil {
			return storageErr(err)
		}
		defer book.Close()

		peers, err := book.All()
		if err != nil {
			return storageErr(err)
		}

		if c.Bool(jsonFlag.Name) {
			return json.NewEncoder(os.Stdout).Encode(peers)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"node_id", "tag", "role", "health", "seed", "last_ip"})
		for _, p := range peers {
			health := fmt.Sprintf("%d", p.HealthScore)
			if p.HealthScore < 25 {
				health = color.RedString(health)
			} else if p.HealthScore >= 75 {
				health = color.GreenString(health)
			}
			table.Append([]string{
				p.NodeID,
				p.NodeTag,
				string(p.Role),
				health,
				strconv.FormatBool(p.IsSeed),
				p.LastIP,
			})
		}
		table.Render()
		return nil
	},
}
