package main

import (
	"flag"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"dbbench/benchmark"
	"dbbench/benchmark/engines/memory"
	"dbbench/benchmark/engines/postgres"
	"dbbench/benchmark/engines/sqlite"
	"dbbench/server"
	"dbbench/util"
	"dbbench/worker"
)

type BenchmarkArgs struct {
	Engine   string `yaml:"engine"`
	Port     int    `yaml:"port"`
	Dsn      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	CpuCount int    `yaml:"cpuCount"`
	Workers  int    `yaml:"workers"`
}

// Prepare zerolog
func setupLogging(disableLog bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var zlevel zerolog.Level
	if disableLog {
		zlevel = zerolog.Disabled
	} else if level == "info" {
		zlevel = zerolog.InfoLevel
	} else {
		zlevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(zlevel)
}

// Returns a BenchmarkArgs struct with the defaults overridden by the
// configFile, if one was given.
func buildArgs(configFile string) *BenchmarkArgs {
	args := BenchmarkArgs{
		Engine:   "memory",
		Port:     3000,
		Path:     "./data/sqlite-benchmark.db",
		CpuCount: runtime.NumCPU(),
		Workers:  4,
	}

	if configFile == "" {
		return &args
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatal(err)
	}
	util.CheckErr(yaml.Unmarshal(data, &args))

	return &args
}

// Returns the engine for the configured backend
func createEngine(args *BenchmarkArgs, pool *worker.Pool) benchmark.Benchmark {
	switch args.Engine {
	case "sqlite":
		return util.Try(sqlite.New(args.Path, args.CpuCount, pool))
	case "postgres":
		return util.Try(postgres.New(args.Dsn, args.CpuCount, pool))
	case "memory":
		return memory.New(args.CpuCount, pool)
	default:
		log.Fatalf("Engine '%s' not found.\n", args.Engine)
		return nil
	}
}

func main() {
	disableLog := flag.Bool("no-log", false, "Disables the log")
	configFile := flag.String("conf", "", "Benchmark config file")
	logLevel := flag.String("level", "debug", "Log level (info|debug)")
	flag.Parse()

	setupLogging(*disableLog, *logLevel)
	args := buildArgs(*configFile)

	pool := worker.NewPool(args.Workers)
	defer pool.Close()

	engine := createEngine(args, pool)
	zlog.Info().Str("engine", engine.DatabaseName()).Int("cpuCount", engine.GetCPUCount()).Msg("Benchmark created")

	util.CheckErr(server.New(engine).ListenAndServe(args.Port))
}
