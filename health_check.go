//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/UlisesFTP/pconstruct-pricing/config"
	"github.com/UlisesFTP/pconstruct-pricing/database"
	"github.com/UlisesFTP/pconstruct-pricing/services"
)

func main() {
	fmt.Printf("🏥 Pricing Service Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	ctx := context.Background()

	healthScore := 0
	totalTests := 4

	// Test 1: Database
	fmt.Print("🗄️  Database: ")
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Println("✅ OK")
		healthScore++
		defer database.Close()
	}

	// Test 2: Redis (cache + queue)
	fmt.Print("🔴 Redis: ")
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Println("✅ OK")
			healthScore++
		}
	}

	// Test 3: Catalog collaborator
	fmt.Print("📚 Catalog Service: ")
	catalog := services.NewCatalogClient(cfg.CatalogServiceURL)
	if components, err := catalog.Components(ctx, map[string]string{"page_size": "1"}); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Printf("✅ OK (%d components visible)\n", len(components))
		healthScore++
	}

	// Test 4: Queue depth
	fmt.Print("📬 Refresh Queue: ")
	if redisClient == nil {
		fmt.Println("❌ SKIPPED (no Redis connection)")
	} else {
		queue := services.NewRefreshQueue(redisClient)
		if stats, err := queue.Stats(ctx); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Printf("✅ OK (%d queued, %d pending, %d dead)\n", stats.Queued, stats.Pending, stats.DeadLetter)
			healthScore++
		}
	}

	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}
