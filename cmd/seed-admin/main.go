// seed-admin creates or updates the administrator account on a fresh device
// database (username: inspectAdmin, role 'A').
//
// Usage (from backend directory):
//   DB_PATH=... ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
)

const (
	adminUsername = "inspectadmin"
	adminName     = "Inspect Admin"
)

func main() {
	ctx := context.Background()

	if err := config.ConnectDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		os.Exit(1)
	}
	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate schema: %v\n", err)
		os.Exit(1)
	}

	password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))
	if password == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD is required")
		os.Exit(2)
	}

	existing, err := models.GetUserByUsername(ctx, adminUsername)
	if err != nil && err != utils.ErrorRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	if existing == nil {
		_, err := models.CreateUser(ctx, &models.NewUser{
			Username: adminUsername,
			Name:     adminName,
			Password: password,
			Role:     models.UserRoleAdmin,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=A)\n", adminUsername)
		return
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	existing.Name = adminName
	existing.PasswordHash = string(hashed)
	existing.Role = models.UserRoleAdmin
	existing.IsActive = utils.NewTrue()
	if _, err := models.SaveUser(ctx, existing); err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: username=%q (role=A)\n", adminUsername)
}
