package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/unclebandit/draftdesk/internal/app"
	"github.com/unclebandit/draftdesk/internal/config"
	"github.com/unclebandit/draftdesk/internal/db"
	"github.com/unclebandit/draftdesk/internal/logging"
	"github.com/unclebandit/draftdesk/internal/middleware"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/service"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create the content_items table in DATABASE_URL",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			conn, err := db.OpenPostgres(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := repository.Migrate(c.Context, conn); err != nil {
				return err
			}
			fmt.Println("Schema applied successfully!")
			return nil
		},
	}
}

// seedItem is one entry of an --file seed document.
type seedItem struct {
	Kind     model.Kind        `json:"kind"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func parseMeta(pairs []string) (map[string]string, error) {
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("metadata %q is not key=value", pair)
		}
		meta[strings.TrimSpace(k)] = v
	}
	return meta, nil
}

func loadSeedFile(path string) ([]seedItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var items []seedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return items, nil
}

func emitCommand() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "hand generated content to review",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "reply or post", Value: string(model.KindReply)},
			&cli.StringFlag{Name: "content", Usage: "content body"},
			&cli.StringSliceFlag{Name: "meta", Usage: "metadata `KEY=VALUE`, repeatable"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "emit every item in a JSON seed `FILE`"},
		},
		Action: func(c *cli.Context) error {
			var items []seedItem
			if path := c.String("file"); path != "" {
				loaded, err := loadSeedFile(path)
				if err != nil {
					return err
				}
				items = loaded
			} else {
				meta, err := parseMeta(c.StringSlice("meta"))
				if err != nil {
					return err
				}
				items = []seedItem{{Kind: model.Kind(c.String("kind")), Content: c.String("content"), Metadata: meta}}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := app.RequireSharedStore(cfg); err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)
			components, err := app.Build(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer components.Close()

			gen := components.Generator(cfg, log)
			cred := service.Credential{Subject: "seeder", Role: service.RoleGenerator}
			for _, it := range items {
				created, err := gen.Emit(c.Context, cred, it.Kind, it.Content, it.Metadata)
				if err != nil {
					return err
				}
				fmt.Printf("Emitted: %s (%s, %s)\n", created.ID, created.Kind, created.Status)
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a signed bearer token for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sub", Usage: "subject", Required: true},
			&cli.StringFlag{Name: "role", Usage: "reviewer, generator or admin", Value: string(service.RoleReviewer)},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			role := service.Role(c.String("role"))
			switch role {
			case service.RoleReviewer, service.RoleGenerator, service.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(middleware.NewTokenAuth(cfg.JWTSecret), c.String("sub"), role, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
