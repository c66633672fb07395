// Seeder populates a development database with demo programs so the API has
// something to serve. It goes through the real repository and contract
// service, so seeded data always satisfies the pricing invariants.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/contract"
	"github.com/myowjaYOY/program-tracker-sub001/internal/db"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := db.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	repo := program.NewRepo(pool)
	svc := &contract.Service{Store: repo}

	therapies, err := repo.ListTherapies(ctx)
	if err != nil {
		log.Fatalf("Failed to list therapies: %v", err)
	}
	if len(therapies) < 2 {
		log.Fatal("Need at least two seeded therapies; run migrations first")
	}

	seedProgram(ctx, repo, svc, therapies, "Jordan Avery", "-100", true)
	seedProgram(ctx, repo, svc, therapies, "Sam Whitfield", "0", false)

	log.Println("Seeding completed successfully!")
}

func seedProgram(ctx context.Context, repo *program.Repo, svc *contract.Service, therapies []program.Therapy, member, discounts string, activate bool) {
	prog, err := repo.CreateProgram(ctx, program.CreateProgramParams{
		MemberName:     member,
		FinanceCharges: decimal.RequireFromString("-50"),
		Discounts:      decimal.RequireFromString(discounts),
	})
	if err != nil {
		log.Fatalf("Failed to create program for %s: %v", member, err)
	}

	items := []contract.ItemChange{
		{Op: program.OpAdd, TherapyID: therapies[0].ID, Quantity: 2,
			UnitCost: decimal.RequireFromString("120"), UnitCharge: decimal.RequireFromString("250")},
		{Op: program.OpAdd, TherapyID: therapies[1].ID, Quantity: 1,
			UnitCost: decimal.RequireFromString("80"), UnitCharge: decimal.RequireFromString("200")},
	}
	for _, change := range items {
		if _, err := svc.Apply(ctx, prog.ID, change); err != nil {
			log.Fatalf("Failed to add item for %s: %v", member, err)
		}
	}

	if activate {
		if _, err := svc.Activate(ctx, prog.ID); err != nil {
			log.Fatalf("Failed to activate program for %s: %v", member, err)
		}
	}
	log.Printf("Seeded program %s for %s", prog.ID, member)
}
