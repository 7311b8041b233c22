package main

import (
	"database/sql"
	"errors"
	"flag"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"barbershop-booking/internal/config"
	"barbershop-booking/internal/logger"
	"barbershop-booking/migrations"
)

// Usage: migrate [-config path] [up|down|force <version>]
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	l, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	db, err := sql.Open("pgx", cfg.DB.URL)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		l.Fatal("ping db", zap.Error(err))
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		l.Fatal("db driver", zap.Error(err))
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		l.Fatal("source driver", zap.Error(err))
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		l.Fatal("create migrator", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	cmd := flag.Arg(0)
	switch cmd {
	case "", "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		version, convErr := strconv.Atoi(flag.Arg(1))
		if convErr != nil {
			l.Fatal("invalid version", zap.String("version", flag.Arg(1)))
		}
		err = m.Force(version)
	default:
		l.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		l.Fatal("migrate", zap.String("command", cmd), zap.Error(err))
	}

	version, dirty, _ := m.Version()
	l.Info("migrations complete", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
