package fleetagent_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/logs"
	"github.com/Schera-ole/fleetagent/internal/payload"
	"github.com/Schera-ole/fleetagent/internal/repository"
	"github.com/Schera-ole/fleetagent/internal/service"
)

// Example of assembling a payload and encoding it for the wire
func Example_payload() {
	sets := []models.MetricSet{
		models.NewMetricSet(models.Security, map[string]models.Value{
			"ssl_enabled":       models.Bool(false),
			"days_until_expiry": models.Unavailable("ssl not enabled"),
		}),
		models.NewMetricSet(models.Performance, map[string]models.Value{
			"cpu_percent": models.Number(12.5),
		}),
	}
	identity := models.Identity{
		InstanceID:   "0b7f6f86-6c2b-4c55-9d43-8a4f0c1d2e3f",
		AgentVersion: "0.4.0",
	}

	p := payload.Assemble(sets, identity, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	body, err := payload.JSONCodec{}.Marshal(p)
	if err != nil {
		fmt.Printf("Error encoding payload: %v\n", err)
		return
	}

	fmt.Println(string(body))
	// Output: {"schema_version":1,"instance_id":"0b7f6f86-6c2b-4c55-9d43-8a4f0c1d2e3f","agent_version":"0.4.0","collected_at":"2026-10-19T12:00:00Z","metric_sets":[{"category":"performance","metrics":{"cpu_percent":12.5}},{"category":"security","metrics":{"days_until_expiry":{"unavailable":true,"reason":"ssl not enabled"},"ssl_enabled":false}}]}
}

// Example of how the collector stores a payload and acknowledges retries
func Example_collector() {
	payloadService := service.NewPayloadService(repository.NewMemStorage(), nil)
	ctx := context.Background()

	p := payload.Assemble(nil, models.Identity{
		InstanceID:   "0b7f6f86-6c2b-4c55-9d43-8a4f0c1d2e3f",
		AgentVersion: "0.4.0",
	}, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	first, err := payloadService.Accept(ctx, "key-1", p, "127.0.0.1")
	if err != nil {
		fmt.Printf("Error accepting payload: %v\n", err)
		return
	}
	second, _ := payloadService.Accept(ctx, "key-1", p, "127.0.0.1")

	instances, _ := payloadService.Instances(ctx)
	fmt.Println(first, second, instances[0].Payloads)
	// Output: key-1 key-1 1
}

// Example of reading the tail of a log file
func Example_logs() {
	dir, err := os.MkdirTemp("", "fleet-logs")
	if err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "home-assistant.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o600); err != nil {
		fmt.Printf("Error writing log: %v\n", err)
		return
	}

	result, err := logs.NewService(path, 1000, 200).GetLogs(2)
	if err != nil {
		fmt.Printf("Error reading logs: %v\n", err)
		return
	}
	fmt.Printf("%q %d/%d\n", result.Logs, result.ReturnedLines, result.TotalLines)
	// Output: "two\nthree\n" 2/3
}
