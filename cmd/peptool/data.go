package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/api/pagehandler"
	"github.com/ruteri/splitkey-pep/api/tickethandler"
	"github.com/ruteri/splitkey-pep/cmd/flags"
	"github.com/ruteri/splitkey-pep/paging"
	"github.com/ruteri/splitkey-pep/ticketing"
)

var flagTicket = &cli.StringFlag{
	Name:  "ticket",
	Value: "ticket.json",
	Usage: "path of the signed ticket",
}
var flagStorageFacility = &cli.StringFlag{
	Name:  "storagefacility",
	Value: "http://127.0.0.1:8084",
	Usage: "base URL of the storage facility",
}
var flagPageKey = &cli.StringFlag{
	Name:     "page-key",
	Required: true,
	Usage:    "hex encoded 32 byte page key",
}

var ticketCommand = &cli.Command{
	Name:  "ticket",
	Usage: "request a ticket from the access manager",
	Flags: []cli.Flag{
		flags.IdentityChainFlag,
		flags.IdentityKeyFlag,
		flagTicket,
		&cli.StringFlag{Name: "accessmanager", Value: "http://127.0.0.1:8081", Usage: "base URL of the access manager"},
		&cli.StringSliceFlag{Name: "mode", Required: true},
		&cli.StringSliceFlag{Name: "participant-group"},
		&cli.StringSliceFlag{Name: "pseudonym", Usage: "hex encoded polymorphic pseudonym, repeatable"},
		&cli.StringSliceFlag{Name: "column-group"},
		&cli.StringSliceFlag{Name: "column"},
	},
	Action: func(cCtx *cli.Context) error {
		identity, err := flags.LoadIdentity(cCtx)
		if err != nil {
			return err
		}
		var pseudonyms [][]byte
		for _, p := range cCtx.StringSlice("pseudonym") {
			decoded, err := hex.DecodeString(p)
			if err != nil {
				return fmt.Errorf("invalid pseudonym %q: %w", p, err)
			}
			pseudonyms = append(pseudonyms, decoded)
		}

		ticket, err := tickethandler.NewClient(cCtx.String("accessmanager"), nil, identity).RequestTicket(cCtx.Context, ticketing.TicketRequest2{
			Modes:                 cCtx.StringSlice("mode"),
			ParticipantGroups:     cCtx.StringSlice("participant-group"),
			PolymorphicPseudonyms: pseudonyms,
			ColumnGroups:          cCtx.StringSlice("column-group"),
			Columns:               cCtx.StringSlice("column"),
		})
		if err != nil {
			return err
		}
		return writeJSON(cCtx.String(flagTicket.Name), ticket)
	},
}

func pageClient(cCtx *cli.Context) (*pagehandler.Client, ticketing.SignedTicket2, []byte, error) {
	var ticket ticketing.SignedTicket2
	identity, err := flags.LoadIdentity(cCtx)
	if err != nil {
		return nil, ticket, nil, err
	}
	if err := readJSON(cCtx.String(flagTicket.Name), &ticket); err != nil {
		return nil, ticket, nil, fmt.Errorf("could not read ticket: %w", err)
	}
	key, err := hex.DecodeString(cCtx.String(flagPageKey.Name))
	if err != nil || len(key) != paging.KeySize {
		return nil, ticket, nil, fmt.Errorf("page key must be %d hex encoded bytes", paging.KeySize)
	}
	return pagehandler.NewClient(cCtx.String(flagStorageFacility.Name), nil, identity), ticket, key, nil
}

var pagesFlags = []cli.Flag{flags.IdentityChainFlag, flags.IdentityKeyFlag, flagTicket, flagStorageFacility, flagPageKey}

var pagesCommand = &cli.Command{
	Name:  "pages",
	Usage: "store and retrieve encrypted files",
	Subcommands: []*cli.Command{
		{
			Name:  "new-key",
			Usage: "print a random page key",
			Action: func(cCtx *cli.Context) error {
				key, err := paging.NewPageKey()
				if err != nil {
					return err
				}
				fmt.Println(hex.EncodeToString(key))
				return nil
			},
		},
		{
			Name:  "upload",
			Usage: "encrypt a file and store it for a participant",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "in", Required: true},
				&cli.StringFlag{Name: "pseudonym", Required: true, Usage: "hex encoded polymorphic pseudonym"},
				&cli.StringFlag{Name: "column", Required: true},
				&cli.IntFlag{Name: "page-size", Value: paging.DefaultPageSize},
			}, pagesFlags...),
			Action: func(cCtx *cli.Context) error {
				client, ticket, key, err := pageClient(cCtx)
				if err != nil {
					return err
				}
				pseudonym, err := hex.DecodeString(cCtx.String("pseudonym"))
				if err != nil {
					return fmt.Errorf("invalid pseudonym: %w", err)
				}
				file, err := os.Open(cCtx.String("in"))
				if err != nil {
					return err
				}
				defer file.Close()

				metadata := paging.Metadata{
					Tag:              cCtx.String("column"),
					Timestamp:        time.Now().UnixMilli(),
					EncryptionScheme: paging.LatestEncryptionScheme,
				}
				response, err := client.Upload(cCtx.Context, ticket, pseudonym, metadata,
					paging.Paginate(file, cCtx.Int("page-size"), key, metadata, 0))
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d pages\tdigest %016x\n", response.ID, response.PageCount, response.Digest)
				return nil
			},
		},
		{
			Name:  "download",
			Usage: "retrieve and decrypt a stored file",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "id", Required: true, Usage: "manifest id returned by upload"},
				&cli.StringFlag{Name: "out", Required: true},
			}, pagesFlags...),
			Action: func(cCtx *cli.Context) error {
				client, ticket, key, err := pageClient(cCtx)
				if err != nil {
					return err
				}
				plaintext, header, err := client.DownloadFile(cCtx.Context, ticket, cCtx.String("id"), key)
				if err != nil {
					return err
				}
				if err := os.WriteFile(cCtx.String("out"), plaintext, 0o600); err != nil {
					return err
				}
				fmt.Printf("%s\t%d bytes\t%d pages\n", header.Column, len(plaintext), header.PageCount)
				return nil
			},
		},
	},
}
