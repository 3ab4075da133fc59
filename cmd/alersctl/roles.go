package main

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/repository"
	"github.com/noah-isme/alers-api/internal/service"
)

var rolesCmd = &cobra.Command{
	Use:   "set-roles <email> <role>[,<role>...]",
	Short: "Replace the roles of an account",
	Long:  "Known roles: student, teacher, admin, gpt_4_privileged. Pass an empty string to clear all roles.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewUserService(repository.NewUserRepository(e.db), validator.New(), e.logger)
		user, err := svc.SetRoles(cmd.Context(), "alersctl", models.UpdateRolesRequest{
			Email: args[0],
			Roles: parseRoles(args[1]),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", user.Email, user.Roles)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}

func parseRoles(raw string) []models.UserRole {
	roles := []models.UserRole{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roles = append(roles, models.UserRole(strings.ToLower(part)))
		}
	}
	return roles
}
