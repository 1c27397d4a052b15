package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/starford/sitekeeper/internal"
	"github.com/starford/sitekeeper/internal/apperr"
	"github.com/starford/sitekeeper/internal/itemstore"
	"github.com/starford/sitekeeper/internal/models"
)

// withWorkspace opens the site for a one-shot command. Logs go to stderr so
// stdout carries only command output.
func withWorkspace(fn func(context.Context, *cli.Command, *internal.Workspace) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ws, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
		if err != nil {
			return err
		}
		defer ws.Close()
		return fn(ctx, cmd, ws)
	}
}

func indexArg(cmd *cli.Command) (int, error) {
	raw := cmd.Args().Get(0)
	if raw == "" {
		return 0, fmt.Errorf("%w: index argument is required", apperr.ErrValidation)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: index must be an integer: %q", apperr.ErrValidation, raw)
	}
	return i, nil
}

func printList(ws *internal.Workspace, kind models.Kind) error {
	lines, err := ws.Store.List(kind)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Printf("no %s\n", kind)
		return nil
	}
	for i, l := range lines {
		fmt.Printf("%d. %s\n", i, l)
	}
	return nil
}

// report prints the outcome of a mutation. A publish failure is reported
// after the saved change and still fails the command.
func report(res *itemstore.Result, err error) error {
	if res != nil {
		fmt.Printf("%s (#%d)\n", res.Message, res.Index)
	}
	if err != nil {
		if res != nil && errors.Is(err, apperr.ErrPublish) {
			return fmt.Errorf("saved, but publishing failed: %w", err)
		}
		return fmt.Errorf("%s: %w", apperr.KindOf(err), err)
	}
	if res.Publish != nil && res.Publish.Skipped {
		fmt.Println("publishing disabled; change saved only")
	}
	return nil
}

func updateCommand() *cli.Command {
	titleFlag := &cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Update title", Required: true}
	bodyFlag := &cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Update text", Required: true}

	return &cli.Command{
		Name:    "update",
		Aliases: []string{"updates"},
		Usage:   "Manage site updates",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List updates with their index",
				Action: withWorkspace(func(_ context.Context, _ *cli.Command, ws *internal.Workspace) error {
					return printList(ws, models.KindUpdates)
				}),
			},
			{
				Name:  "add",
				Usage: "Append an update dated now, save and publish",
				Flags: []cli.Flag{titleFlag, bodyFlag},
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					f := models.Fields{Title: cmd.String("title"), Body: cmd.String("body")}
					return report(ws.Store.Add(ctx, models.KindUpdates, f))
				}),
			},
			{
				Name:      "edit",
				Usage:     "Replace the title and text of an update",
				ArgsUsage: "<index>",
				Flags:     []cli.Flag{titleFlag, bodyFlag},
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					i, err := indexArg(cmd)
					if err != nil {
						return err
					}
					f := models.Fields{Title: cmd.String("title"), Body: cmd.String("body")}
					return report(ws.Store.Edit(ctx, models.KindUpdates, i, f))
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete an update",
				ArgsUsage: "<index>",
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					i, err := indexArg(cmd)
					if err != nil {
						return err
					}
					return report(ws.Store.Delete(ctx, models.KindUpdates, i))
				}),
			},
		},
	}
}

func documentCommand() *cli.Command {
	return &cli.Command{
		Name:    "doc",
		Aliases: []string{"docs", "document", "documents"},
		Usage:   "Manage published documents",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List documents with their index",
				Action: withWorkspace(func(_ context.Context, _ *cli.Command, ws *internal.Workspace) error {
					return printList(ws, models.KindDocuments)
				}),
			},
			{
				Name:  "add",
				Usage: "Stage a file or directory and append a document linking to it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name", Required: true},
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "File or directory to stage", Required: true},
				},
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					f := models.Fields{Title: cmd.String("name"), Source: cmd.String("source")}
					return report(ws.Store.Add(ctx, models.KindDocuments, f))
				}),
			},
			{
				Name:      "edit",
				Usage:     "Rename a document and optionally replace its file",
				ArgsUsage: "<index>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "New display name", Required: true},
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Replacement file or directory"},
				},
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					i, err := indexArg(cmd)
					if err != nil {
						return err
					}
					f := models.Fields{Title: cmd.String("name"), Source: cmd.String("source")}
					return report(ws.Store.Edit(ctx, models.KindDocuments, i, f))
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a document",
				ArgsUsage: "<index>",
				Action: withWorkspace(func(ctx context.Context, cmd *cli.Command, ws *internal.Workspace) error {
					i, err := indexArg(cmd)
					if err != nil {
						return err
					}
					return report(ws.Store.Delete(ctx, models.KindDocuments, i))
				}),
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search update and document titles and text",
		ArgsUsage: "<query>",
		Action: withWorkspace(func(_ context.Context, cmd *cli.Command, ws *internal.Workspace) error {
			q := cmd.Args().Get(0)
			if q == "" {
				return fmt.Errorf("%w: query argument is required", apperr.ErrValidation)
			}
			results, err := ws.Index.Search(q, 20)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%s #%d  %s  [%s]\n", r.Kind, r.Position, r.Title, r.Date)
			}
			return nil
		}),
	}
}
