// seed/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ghostwriter-labs/gate_api/seed/seeders"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Parse command line flags
	var (
		seedType = flag.String("type", "admin", "Type of seeding: admin, tokens")
		tier     = flag.String("tier", "HIDDEN_LONG", "Tier for minted tokens")
		count    = flag.Int("count", 1, "Number of tokens to mint")
		username = flag.String("username", "", "Admin username (overrides ADMIN_USERNAME)")
		password = flag.String("password", "", "Admin password (overrides ADMIN_PASSWORD)")
		help     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Connected to database")

	mainSeeder := seeders.NewMainSeeder(db)

	switch *seedType {
	case "admin":
		user := *username
		if user == "" {
			user = os.Getenv("ADMIN_USERNAME")
		}
		pass := *password
		if pass == "" {
			pass = os.Getenv("ADMIN_PASSWORD")
		}
		if err := mainSeeder.SeedAdmin(user, pass); err != nil {
			log.Fatalf("Failed to seed admin: %v", err)
		}
	case "tokens":
		ids, err := mainSeeder.MintTokens(*tier, *count)
		if err != nil {
			log.Fatalf("Failed to mint tokens: %v", err)
		}
		// The ids are secrets shown exactly once.
		for _, id := range ids {
			fmt.Println(id)
		}
	default:
		log.Fatalf("Unknown seed type: %s. Use 'admin' or 'tokens'", *seedType)
	}

	log.Println("Seeding completed successfully")
}

func showHelp() {
	fmt.Println("Database seeding tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  seed -type admin -username ops -password secret")
	fmt.Println("  seed -type tokens -tier HIDDEN_SHORT -count 5")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
