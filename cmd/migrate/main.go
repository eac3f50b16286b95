package main

import (
	"errors"
	"flag"
	"log"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/pkg/database"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	down := flag.Bool("down", false, "回滚最近一次迁移")
	force := flag.Int("force", -1, "dirty 状态下强制设置版本")
	flag.Parse()

	config.LoadConfig()

	m, err := migrate.New(
		"file://migrations",
		database.MigrateURL(config.GlobalConfig.Database),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			log.Fatal("Failed to force version:", err)
		}
		log.Printf("Forced version %d", *force)
		return
	}

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			log.Fatalf("Database is dirty at version %d, fix it and rerun with -force", dirty.Version)
		}
		log.Fatal(err)
	}

	version, isDirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal(err)
	}
	log.Printf("Migration successful, version=%d dirty=%v", version, isDirty)
}
