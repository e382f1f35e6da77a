package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/api/blocklisthandler"
	"github.com/ruteri/splitkey-pep/cmd/flags"
	"github.com/ruteri/splitkey-pep/interfaces"
)

var flagKeyServer = &cli.StringFlag{
	Name:  "keyserver",
	Value: "http://127.0.0.1:8083",
	Usage: "base URL of the key server",
}

func blocklistClient(cCtx *cli.Context) (*blocklisthandler.Client, error) {
	identity, err := flags.LoadIdentity(cCtx)
	if err != nil {
		return nil, err
	}
	return blocklisthandler.NewClient(cCtx.String(flagKeyServer.Name), nil, identity), nil
}

var blocklistFlags = []cli.Flag{flagKeyServer, flags.IdentityChainFlag, flags.IdentityKeyFlag}

var blocklistCommand = &cli.Command{
	Name:  "blocklist",
	Usage: "administer the enrollment token blocklist",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "block the tokens of a user issued at or before a time",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "subject", Required: true},
				&cli.StringFlag{Name: "group", Required: true},
				&cli.TimestampFlag{Name: "issued-at", Layout: time.RFC3339, Usage: "defaults to now"},
				&cli.StringFlag{Name: "note"},
			}, blocklistFlags...),
			Action: func(cCtx *cli.Context) error {
				client, err := blocklistClient(cCtx)
				if err != nil {
					return err
				}
				issuedAt := time.Now()
				if ts := cCtx.Timestamp("issued-at"); ts != nil {
					issuedAt = *ts
				}
				id, err := client.Create(cCtx.Context, interfaces.TokenIdentifier{
					Subject:       cCtx.String("subject"),
					UserGroup:     cCtx.String("group"),
					IssueDateTime: issuedAt,
				}, cCtx.String("note"))
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			},
		},
		{
			Name:  "list",
			Flags: blocklistFlags,
			Action: func(cCtx *cli.Context) error {
				client, err := blocklistClient(cCtx)
				if err != nil {
					return err
				}
				entries, err := client.List(cCtx.Context)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					fmt.Printf("%d\t%s\t%s\t%s\t%s\t%q\n", entry.ID, entry.Target.Subject, entry.Target.UserGroup,
						entry.Target.IssueDateTime.Format(time.RFC3339), entry.Metadata.Issuer, entry.Metadata.Note)
				}
				return nil
			},
		},
		{
			Name:  "remove",
			Flags: append([]cli.Flag{&cli.Int64Flag{Name: "id", Required: true}}, blocklistFlags...),
			Action: func(cCtx *cli.Context) error {
				client, err := blocklistClient(cCtx)
				if err != nil {
					return err
				}
				entry, err := client.Remove(cCtx.Context, cCtx.Int64("id"))
				if err != nil {
					return err
				}
				fmt.Printf("removed %d (%s, %s)\n", entry.ID, entry.Target.Subject, entry.Target.UserGroup)
				return nil
			},
		},
	},
}
