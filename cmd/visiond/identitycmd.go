package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/vision-project/vision-node/internal/identity"
)

var showIdentityCommand = &cli.Command{
	Name:  "show-identity",
	Usage: "print this node's persistent identity (generating one on first run)",
	Flags: []cli.Flag{dataDirFlag, nodeTagFlag, jsonFlag},
	Action: func(c *cli.Context) error {
		id, err := identity.Load(c.String(dataDirFlag.Name), c.String(nodeTagFlag.Name))
		if err != nil {
			return configErr(fmt.Errorf("loading identity: %w", err))
		}

		if c.Bool(jsonFlag.Name) {
			return json.NewEncoder(os.Stdout).Encode(map[string]string{
				"node_id":        id.NodeID,
				"node_tag":       id.NodeTag,
				"vision_address": id.VisionAddress(),
				"public_key":     hex.EncodeToString(id.PublicKey),
			})
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"field", "value"})
		table.Append([]string{"node_id", id.NodeID})
		table.Append([]string{"node_tag", id.NodeTag})
		table.Append([]string{"vision_address", color.GreenString(id.VisionAddress())})
		table.Append([]string{"public_key", hex.EncodeToString(id.PublicKey)})
		table.Render()
		return nil
	},
}
