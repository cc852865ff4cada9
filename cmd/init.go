package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemaengine/config"
	"github.com/ridoystarlord/schemaengine/database"
)

var initProvider string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create schemaengine.yaml and an example schema file",
	Long: `Initialize a new project with a config file and an example schema.

Examples:
  schemaengine init                       # PostgreSQL datasource
  schemaengine init --provider sqlite     # SQLite datasource
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch database.Family(initProvider) {
		case database.Postgres, database.MySQL, database.SQLite:
		default:
			return fmt.Errorf("unknown provider %q (postgresql, mysql, sqlite)", initProvider)
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath
		}
		if exists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if exists(cfg.Schema) {
			return fmt.Errorf("%s already exists", cfg.Schema)
		}

		project := config.Default()
		project.Schema = cfg.Schema
		project.Migrations = cfg.Migrations
		if err := project.Save(path); err != nil {
			return err
		}
		if err := os.WriteFile(cfg.Schema, []byte(exampleSchema(initProvider)), 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", cfg.Schema, err)
		}

		out := cmd.OutOrStdout()
		green.Fprintf(out, "✅ Created %s and %s\n", path, cfg.Schema)
		fmt.Fprintln(out, "📝 Set DATABASE_URL in .env or the environment")
		fmt.Fprintln(out, "🚀 Run 'schemaengine generate -n init' to create the first migration")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initProvider, "provider", "p", string(database.Postgres), "Datasource provider (postgresql, mysql, sqlite)")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func exampleSchema(provider string) string {
	return fmt.Sprintf(`datasources:
  - name: db
    properties:
      provider: %q
      url: env("DATABASE_URL")
enums:
  - name: Role
    values: [USER, ADMIN]
models:
  - name: User
    fields:
      - id Int @id @default(autoincrement())
      - email String @unique
      - name String?
      - role Role @default(USER)
      - posts Post[]
      - createdAt DateTime @default(now())
  - name: Post
    fields:
      - id Int @id @default(autoincrement())
      - title String
      - published Boolean @default(false)
      - 'author User @relation(fields: [authorId], references: [id])'
      - authorId Int
    attributes: ['@@index([authorId])']
`, provider)
}
