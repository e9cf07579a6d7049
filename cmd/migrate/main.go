package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/migrate"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
	"gestoria.cloud/internal/store/pg"
)

// platformTenantID is the tenant inserted by the platform seed.
const platformTenantID = "00000000-0000-0000-0000-000000000001"

const usage = "usage: migrate [-dsn DSN] up|down|status|pending|seed|seed-rbac|create-super-admin"

func main() {
	log := obs.Logger()
	dsn := flag.String("dsn", os.Getenv("GESTORIA_PG_DSN"), "PostgreSQL DSN")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall command timeout")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GESTORIA_PG_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, 4)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), nil)
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status", "pending":
		var names []string
		if cmd == "status" {
			names, err = mgr.Status(ctx)
		} else {
			names, err = mgr.Pending(ctx)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	case "seed-rbac":
		err = seedRBAC(ctx, store)
	case "create-super-admin":
		err = createSuperAdmin(ctx, store, args)
	default:
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		log.WithError(err).WithField("command", cmd).Fatal("migrate failed")
	}
}

func seedRBAC(ctx context.Context, store *pg.Store) error {
	report, err := authz.SeedRBAC(ctx, store)
	if err != nil {
		return err
	}
	perms, roles, err := store.CountRBAC(ctx)
	if err != nil {
		return err
	}
	obs.Logger().WithFields(logrus.Fields{
		"seeded_permissions": report.Permissions,
		"seeded_roles":       report.Roles,
		"total_permissions":  perms,
		"total_roles":        roles,
	}).Info("rbac seeded")
	return nil
}

// createSuperAdmin creates or reactivates a platform operator and grants
// the Super Admin role.
func createSuperAdmin(ctx context.Context, store *pg.Store, args []string) error {
	fs := flag.NewFlagSet("create-super-admin", flag.ContinueOnError)
	email := fs.String("email", "", "Operator email")
	password := fs.String("password", "", "Operator password")
	client := fs.String("client", platformTenantID, "Tenant the operator belongs to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := auth.NormalizeEmail(*email)
	if addr == "" || *password == "" {
		return errors.New("-email and -password are required")
	}
	tenantID := strings.TrimSpace(*client)
	if _, err := store.GetTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	if _, err := authz.SeedRBAC(ctx, store); err != nil {
		return fmt.Errorf("seed rbac: %w", err)
	}

	user, err := store.GetUserByEmail(ctx, tenantID, addr)
	switch {
	case errors.Is(err, model.ErrNotFound):
		user, err = store.CreateUser(ctx, model.User{
			TenantID: tenantID, Email: addr, PasswordHash: hash, Status: model.UserActive,
		})
	case err == nil:
		user.PasswordHash = hash
		user.Status = model.UserActive
		user, err = store.UpdateUser(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	role, err := store.FindRoleByName(ctx, model.SuperAdminRole, "")
	if err != nil {
		return fmt.Errorf("find role: %w", err)
	}
	if err := store.AssignRole(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	obs.Logger().WithFields(logrus.Fields{
		"user_id":   user.ID,
		"email":     user.Email,
		"client_id": tenantID,
	}).Info("super admin ready")
	return nil
}
