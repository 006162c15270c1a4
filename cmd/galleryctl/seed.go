package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/world-gallery/internal/domain"
)

// seedFile is the YAML document accepted by `world seed`
type seedFile struct {
	Worlds []domain.CreateWorldRequest `yaml:"worlds"`
}

// parseSeedFile decodes and validates every world of a seed document
func parseSeedFile(r io.Reader) ([]domain.CreateWorldRequest, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	for i := range doc.Worlds {
		if err := doc.Worlds[i].Validate(); err != nil {
			return nil, fmt.Errorf("world %d (%q): %w", i, doc.Worlds[i].Title, err)
		}
	}
	return doc.Worlds, nil
}

// NewWorldCmd creates the world subcommand.
func NewWorldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Manage worlds",
	}
	cmd.AddCommand(newWorldSeedCmd())
	return cmd
}

func newWorldSeedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert the worlds listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening seed file: %w", err)
			}
			defer f.Close()

			worlds, err := parseSeedFile(f)
			if err != nil {
				return err
			}
			if dryRun {
				cmd.Printf("%d worlds are valid\n", len(worlds))
				return nil
			}

			logger := newLogger()
			cfg := loadConfig(logger)
			repo, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			for _, req := range worlds {
				world, err := repo.CreateWorld(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("seeding %q: %w", req.Title, err)
				}
				cmd.Printf("seeded %s %q with %d images\n", world.ID, world.Title, len(world.Images))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only validate the file")
	return cmd
}
