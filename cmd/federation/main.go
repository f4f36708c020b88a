// Command federation assembles the module registry from configuration,
// registers the manufacturing module manifest, initializes every known
// module and prints the resulting status and performance report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/module_federation/internal/config"
	"github.com/R3E-Network/module_federation/internal/federation/contract"
	"github.com/R3E-Network/module_federation/internal/federation/events"
	"github.com/R3E-Network/module_federation/internal/federation/metrics"
	"github.com/R3E-Network/module_federation/internal/federation/monitor"
	"github.com/R3E-Network/module_federation/internal/federation/registry"
	"github.com/R3E-Network/module_federation/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the federation config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	timeout := flag.Duration("timeout", time.Minute, "Overall startup timeout")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reg, collector := buildRegistry(cfg)
	if err := reg.Start(); err != nil {
		log.Fatalf("Failed to start registry: %v", err)
	}

	for _, entry := range manifest() {
		if err := reg.Register(entry); err != nil {
			log.Fatalf("Failed to register %s: %v", entry.Metadata.ID, err)
		}
	}

	reg.InitializeAllModules(ctx)
	if err := runDemo(ctx, reg); err != nil {
		log.Printf("Warning: demo workflow failed: %v", err)
	}

	if err := printJSON("status", reg.GetModuleStatus()); err != nil {
		log.Fatalf("Failed to print status: %v", err)
	}
	if err := printJSON("report", reg.GetPerformanceReport()); err != nil {
		log.Fatalf("Failed to print report: %v", err)
	}
	if err := printJSON("shared state", reg.SharedStateSnapshot()); err != nil {
		log.Fatalf("Failed to print shared state: %v", err)
	}
	fmt.Println("metrics:")
	if err := collector.WriteText(os.Stdout); err != nil {
		log.Fatalf("Failed to print metrics: %v", err)
	}

	if err := reg.Shutdown(ctx); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

func buildRegistry(cfg *config.Config) (*registry.Registry, *metrics.Collector) {
	collector := metrics.NewCollector(cfg.Monitor.MetricsNamespace)

	mon := monitor.New(cfg.MonitorConfig(),
		monitor.WithLogger(logger.New(cfg.LoggerConfig("monitor"))),
		monitor.WithMetrics(collector),
	)
	for id, budget := range cfg.Budgets() {
		mon.SetBudget(id, budget)
	}

	bus := events.NewBus(cfg.EventsConfig(),
		events.WithLogger(logger.New(cfg.LoggerConfig("events"))),
		events.WithMetrics(collector),
	)

	reg := registry.New(cfg.RegistryConfig(),
		registry.WithLogger(logger.New(cfg.LoggerConfig("registry"))),
		registry.WithMonitor(mon),
		registry.WithBus(bus),
		registry.WithContracts(contract.DefaultTable()),
		registry.WithMetrics(collector),
	)
	return reg, collector
}

// runDemo drives one job through the loaded modules so the report carries
// call metrics.
func runDemo(ctx context.Context, reg *registry.Registry) error {
	instance, err := reg.GetModule(ctx, "scheduling")
	if err != nil {
		return err
	}
	scheduler, ok := instance.(contract.Scheduler)
	if !ok {
		return fmt.Errorf("scheduling module does not implement the scheduler contract")
	}

	slot, err := scheduler.ScheduleJob(ctx, contract.Job{
		ID:       "JOB-1001",
		Product:  "bracket",
		Quantity: 240,
		Due:      time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		return err
	}
	log.Printf("Scheduled %s on %s from %s", slot.JobID, slot.Line, slot.Start.Format(time.RFC3339))

	result, err := reg.SendMessage(ctx, "quality", "LOT-"+slot.JobID)
	if err != nil {
		return err
	}
	log.Printf("Quality response: %v", result)
	return nil
}

func printJSON(label string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s:\n%s\n", label, data)
	return nil
}
