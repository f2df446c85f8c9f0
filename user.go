package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"labelapi/models"
)

func newCreateUserCommand(configPath *string, debugMode *bool) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an image admin and print its API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if _, err := loadConfig(*configPath, *debugMode); err != nil {
				return err
			}

			var key, secret string
			err := models.DB.Transaction(func(tx *gorm.DB) error {
				user, err := models.FindOrCreateUser(tx, email)
				if err != nil {
					return err
				}
				key, secret, err = user.GenerateAPIKey(tx)
				if err != nil {
					return err
				}
				return models.GrantRole(tx, user, models.GlobalGrant{Name: models.RoleImageAdmin})
			})
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Email", "API key", "API secret"})
			tw.AppendRow(table.Row{email, key, secret})
			tw.Render()
			fmt.Println("Store the secret now, it cannot be shown again.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address of the user")
	return cmd
}
