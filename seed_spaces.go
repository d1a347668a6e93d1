package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"parking-marketplace-server/utils"
)

// demoSpace represents one seeded listing
type demoSpace struct {
	Title           string
	Description     string
	Address         string
	City            string
	Postcode        string
	Latitude        float64
	Longitude       float64
	HourlyRatePence int64
	IsCovered       bool
	HasEVCharging   bool
	HasCCTV         bool
}

// seedSpaces loads demo accounts and listings for local development. It runs
// against the migrated schema and is safe to re-run.
func seedSpaces() {
	dbHost := seedEnv("DB_HOST", "localhost")
	dbPort := seedEnv("DB_PORT", "5432")
	dbUser := seedEnv("DB_USER", "postgres")
	dbPassword := seedEnv("DB_PASSWORD", "")
	dbName := seedEnv("DB_NAME", "parking_marketplace_db")
	dbSSLMode := seedEnv("DB_SSL_MODE", "disable")

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database for seeding:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database for seeding:", err)
	}

	password, err := utils.HashPassword("password123")
	if err != nil {
		log.Fatal("Failed to hash demo password:", err)
	}

	accounts := []struct {
		FullName string
		Email    string
		Role     string
	}{
		{"Demo Admin", "admin@parkmarket.test", "admin"},
		{"Harriet Osei", "host@parkmarket.test", "host"},
		{"Dana Whitfield", "driver@parkmarket.test", "driver"},
	}

	for _, account := range accounts {
		_, err := db.Exec(`
			INSERT INTO users (full_name, email, password_hash, role, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, NOW(), NOW())
			ON CONFLICT (email) DO NOTHING`,
			account.FullName, account.Email, password, account.Role)
		if err != nil {
			log.Printf("❌ Failed to seed user %s: %v", account.Email, err)
			continue
		}
	}
	log.Printf("✅ Seeded %d demo accounts", len(accounts))

	var hostID int64
	if err := db.QueryRow(`SELECT id FROM users WHERE email = $1`, "host@parkmarket.test").Scan(&hostID); err != nil {
		log.Printf("❌ Demo host not found, skipping space seed: %v", err)
		return
	}

	spaces := []demoSpace{
		{
			Title:           "Covered bay near King's Cross",
			Description:     "Secure underground bay two minutes from the station.",
			Address:         "14 Caledonia Street",
			City:            "London",
			Postcode:        "N1 9DZ",
			Latitude:        51.5308,
			Longitude:       -0.1238,
			HourlyRatePence: 450,
			IsCovered:       true,
			HasCCTV:         true,
		},
		{
			Title:           "Driveway with EV charger",
			Description:     "Private driveway with a 7kW charge point.",
			Address:         "82 Mill Road",
			City:            "Cambridge",
			Postcode:        "CB1 2AD",
			Latitude:        52.1988,
			Longitude:       0.1373,
			HourlyRatePence: 200,
			HasEVCharging:   true,
		},
		{
			Title:           "City centre multi-storey bay",
			Description:     "Reserved bay on level 2, open around the clock.",
			Address:         "3 Oxford Street",
			City:            "Manchester",
			Postcode:        "M1 4PB",
			Latitude:        53.4774,
			Longitude:       -2.2411,
			HourlyRatePence: 300,
			IsCovered:       true,
			HasCCTV:         true,
		},
	}

	seeded := 0
	for _, space := range spaces {
		var spaceID int64
		err := db.QueryRow(`
			INSERT INTO parking_spaces (
				owner_id, title, description, address, city, postcode,
				latitude, longitude, hourly_rate_pence,
				is_covered, has_ev_charging, has_cctv, has_24h_access, disabled_access,
				is_active, created_at, updated_at
			)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, false, true, NOW(), NOW()
			WHERE NOT EXISTS (
				SELECT 1 FROM parking_spaces WHERE owner_id = $1 AND title = $2
			)
			RETURNING id`,
			hostID, space.Title, space.Description, space.Address, space.City, space.Postcode,
			space.Latitude, space.Longitude, space.HourlyRatePence,
			space.IsCovered, space.HasEVCharging, space.HasCCTV).Scan(&spaceID)
		if err == sql.ErrNoRows {
			continue // already seeded
		}
		if err != nil {
			log.Printf("❌ Failed to seed space %q: %v", space.Title, err)
			continue
		}

		// Weekday daytime window for every seeded space
		for day := 1; day <= 5; day++ {
			if _, err := db.Exec(`
				INSERT INTO availability_slots (space_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
				VALUES ($1, $2, '07:00', '20:00', true, NOW(), NOW())`,
				spaceID, day); err != nil {
				log.Printf("❌ Failed to seed slot for space %d: %v", spaceID, err)
			}
		}
		seeded++
	}
	log.Printf("✅ Seeded %d demo spaces", seeded)
}

func seedEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
