//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/fulfillment"
	"github.com/bloodlink/bloodlink/internal/domain/matching"
	"github.com/bloodlink/bloodlink/internal/domain/notification"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	tmpl "github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/migrations"
)

// globalPool is the shared database, migrated once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 20, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// resetTables empties every table so each test starts from a clean schema.
func resetTables(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := globalPool.Exec(ctx, `TRUNCATE notifications, donations, blood_requests, profiles, users CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

type env struct {
	svc   *fulfillment.Service
	repos fulfillment.Repositories
	lc    *request.Lifecycle
}

func newEnv(t *testing.T) *env {
	t.Helper()
	resetTables(t, context.Background())

	log := zerolog.Nop()
	repos := fulfillment.Repositories{
		Requests:      request.NewRepoPG(globalPool),
		Donations:     donation.NewRepoPG(globalPool),
		Donors:        donor.NewRepoPG(globalPool),
		Notifications: notification.NewRepoPG(globalPool),
	}
	tx := db.NewTransactor(globalPool)
	lc := request.NewLifecycle(repos.Requests, tx, nil, log)
	filter := matching.NewEligibilityFilter(repos.Donors, repos.Donations, 5*time.Second, 500)
	notifier := matching.NewNotifier(repos.Notifications, tmpl.NewTemplateEngine(), nil, nil, log)
	svc := fulfillment.NewService(repos, tx, lc, filter, matching.NewRanker(), notifier, nil, log)
	return &env{svc: svc, repos: repos, lc: lc}
}

// createUser inserts an account with the given role and returns its id.
func createUser(t *testing.T, ctx context.Context, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := globalPool.Exec(ctx,
		`INSERT INTO users (id, email, role) VALUES ($1, $2, $3)`,
		id, id.String()+"@example.test", role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

type donorOpts struct {
	group        string
	city         string
	age          int
	lastDonation *time.Time
	unavailable  bool
}

// createDonor inserts a DONOR account with a profile.
func createDonor(t *testing.T, ctx context.Context, name string, o donorOpts) uuid.UUID {
	t.Helper()
	if o.group == "" {
		o.group = "O_POSITIVE"
	}
	if o.city == "" {
		o.city = "Dhaka"
	}
	if o.age == 0 {
		o.age = 25
	}
	id := createUser(t, ctx, "DONOR")
	_, err := globalPool.Exec(ctx,
		`INSERT INTO profiles (user_id, first_name, last_name, blood_group, city, date_of_birth, is_available, last_donation)
		 VALUES ($1, $2, 'Test', $3, $4, $5, $6, $7)`,
		id, name, o.group, o.city, time.Now().AddDate(-o.age, 0, -1), !o.unavailable, o.lastDonation)
	if err != nil {
		t.Fatalf("create donor profile: %v", err)
	}
	return id
}

func requestInput() request.CreateInput {
	return request.CreateInput{
		Title:           "Urgent O+ needed for surgery",
		BloodGroup:      "O_POSITIVE",
		UrgencyLevel:    "HIGH",
		HospitalName:    "Dhaka Medical",
		HospitalAddress: "Secretariat Road, Dhaka 1000",
		City:            "Dhaka",
		ContactPerson:   "Rahim Uddin",
		ContactPhone:    "01712345678",
		RequiredDate:    time.Now().Add(72 * time.Hour),
	}
}

func actor(id uuid.UUID, role string) fulfillment.Actor {
	return fulfillment.Actor{UserID: id, Roles: []string{role}}
}
