package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// Quick inspection of the persisted event window. Prints the retained
// events newest first plus a per-age breakdown so operators can verify
// pruning against the configured retention.
func main() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "healthmap"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	rows, err := db.Query(`
		SELECT guid, title, published_at
		FROM health_events
		ORDER BY published_at DESC
	`)
	if err != nil {
		log.Fatalf("Failed to query health_events: %v", err)
	}
	defer rows.Close()

	fmt.Println("Retained health events (newest first):")
	fmt.Println(strings.Repeat("=", 100))

	count := 0
	for rows.Next() {
		var guid, title string
		var publishedAt sql.NullTime
		if err := rows.Scan(&guid, &title, &publishedAt); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		count++
		ts := "<none>"
		if publishedAt.Valid {
			ts = publishedAt.Time.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("%3d. %-25s %s\n     %s\n", count, ts, guid, title)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("Total: %d events\n\n", count)

	var last24h, last7d int
	err = db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE published_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE published_at > NOW() - INTERVAL '7 days')
		FROM health_events
	`).Scan(&last24h, &last7d)
	if err != nil {
		log.Fatalf("Failed to query age breakdown: %v", err)
	}

	fmt.Printf("Within 24h: %d\n", last24h)
	fmt.Printf("Within 7d:  %d\n", last7d)
	if count > last7d {
		fmt.Printf("WARNING: %d events are older than the 7 day retention window\n", count-last7d)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}
